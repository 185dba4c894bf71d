// Package ledger tracks every live refresh token in Redis so revocation
// is enforceable before natural expiry. Rotation retires the old record
// and writes its successor in a single Lua script.
package ledger
