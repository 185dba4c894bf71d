// Package pgstore ships PostgreSQL adapters for the authcore provider
// interfaces: a UserProvider over a principal table and a session
// AuditStore over the login audit trail.
//
// Both adapters take a caller-owned pgxpool.Pool and run plain SQL; no
// migration tooling is bundled. [Schema] holds the reference DDL.
package pgstore
