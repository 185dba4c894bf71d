// Package authcore provides an authentication and session-lifecycle
// engine with dual-keyed JWT pairs, a Redis-backed refresh-token
// revocation ledger, OTP login over email and SMS, password expiry and
// lockout policy, and a durable session audit trail.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], the provider interfaces, and value types (LoginResult,
// AuthResult, MetricsSnapshot). Token codecs live in jwt, the
// revocation ledger in ledger, the session directory in session, and
// password hashing in password; none of them import authcore back.
//
// # State ownership
//
// Durable records (principals, the session audit trail) live behind
// caller-implemented interfaces; pgstore ships Postgres adapters. All
// TTL state — the refresh ledger, OTP codes, session pointers,
// blacklist markers, lockout counters — lives in Redis, self-expiring.
//
// # Performance contract
//
// ValidateAccess is the hot path: one local parse plus one Redis
// EXISTS. Login, refresh, and OTP operations are allowed the extra
// round-trips for their ledger and directory writes.
package authcore
