package session

import (
	"context"
	"time"
)

// AuditStore is the durable backing for the login audit trail. The host
// implements it over its own database; [MemoryStore] is provided for
// tests and single-process deployments.
//
// Close must be idempotent: closing an already-closed record returns
// (false, nil) and leaves the stored LogoutTime untouched.
//
// ListByUser returns records newest-first; a non-positive limit means
// no limit.
type AuditStore interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	OpenSessions(ctx context.Context, userID string) ([]*Record, error)
	Close(ctx context.Context, id string, logoutAt time.Time, total time.Duration) (bool, error)
	LastSession(ctx context.Context, userID string) (*Record, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
}
