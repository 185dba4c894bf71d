// Package session keeps the login audit trail and the per-user session
// pointer cache.
//
// # Two stores
//
// The durable audit trail lives behind [AuditStore], implemented by the
// host over its own database (or [MemoryStore]). Every login appends a
// [Record]; logout stamps LogoutTime and the derived TotalTime. Records
// are never deleted.
//
// The Redis pointer (session:{userID}) caches the most recent login and
// its refresh chain. It expires on its own and its absence proves
// nothing; only the ledger and the audit trail are authoritative.
//
// # Architecture boundaries
//
// This package does not parse tokens or enforce authentication policy.
// Those belong to the Engine.
package session
