package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pointerKeyPrefix = "session:"

// Directory joins the durable audit trail with the Redis pointer cache.
// The audit trail is the source of truth; the pointer only accelerates
// "most recent login" lookups and carries the live refresh chain.
type Directory struct {
	audit      AuditStore
	redis      redis.UniversalClient
	pointerTTL time.Duration
}

func NewDirectory(audit AuditStore, rdb redis.UniversalClient, pointerTTL time.Duration) *Directory {
	if pointerTTL <= 0 {
		pointerTTL = 7 * 24 * time.Hour
	}
	return &Directory{
		audit:      audit,
		redis:      rdb,
		pointerTTL: pointerTTL,
	}
}

func pointerKey(userID string) string {
	return pointerKeyPrefix + userID
}

// Open persists a fresh audit record for a successful login.
func (d *Directory) Open(ctx context.Context, rec *Record) error {
	if rec.LoginTime.IsZero() {
		rec.LoginTime = time.Now()
	}
	return d.audit.Create(ctx, rec)
}

// Close stamps the logout time and derived duration on an open record.
// Closing an already-closed or unknown record is a no-op.
func (d *Directory) Close(ctx context.Context, id string, logoutAt time.Time) (bool, error) {
	rec, err := d.audit.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !rec.Open() {
		return false, nil
	}

	total := logoutAt.Sub(rec.LoginTime)
	if total < 0 {
		total = 0
	}
	return d.audit.Close(ctx, id, logoutAt, total)
}

// CloseAll closes every open record for the user and returns their ids.
func (d *Directory) CloseAll(ctx context.Context, userID string, logoutAt time.Time) ([]string, error) {
	open, err := d.audit.OpenSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	closed := make([]string, 0, len(open))
	for _, rec := range open {
		total := logoutAt.Sub(rec.LoginTime)
		if total < 0 {
			total = 0
		}
		ok, err := d.audit.Close(ctx, rec.ID, logoutAt, total)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return closed, err
		}
		if ok {
			closed = append(closed, rec.ID)
		}
	}
	return closed, nil
}

// OpenCount reports how many sessions the user currently has open.
func (d *Directory) OpenCount(ctx context.Context, userID string) (int, error) {
	open, err := d.audit.OpenSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

// Get fetches one audit record by id.
func (d *Directory) Get(ctx context.Context, id string) (*Record, error) {
	return d.audit.Get(ctx, id)
}

// Last returns the user's most recent session, open or closed.
func (d *Directory) Last(ctx context.Context, userID string) (*Record, error) {
	return d.audit.LastSession(ctx, userID)
}

// List returns the user's session history, newest first.
func (d *Directory) List(ctx context.Context, userID string, limit int) ([]*Record, error) {
	return d.audit.ListByUser(ctx, userID, limit)
}

// SavePointer replaces the user's cached session pointer. Last login
// wins; concurrent logins keep the most recent write.
func (d *Directory) SavePointer(ctx context.Context, userID string, ptr Pointer) error {
	if ptr.CreatedAt == 0 {
		ptr.CreatedAt = time.Now().Unix()
	}

	blob, err := json.Marshal(ptr)
	if err != nil {
		return err
	}

	if err := d.redis.Set(ctx, pointerKey(userID), blob, d.pointerTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetPointer fetches the cached pointer. ErrNotFound means only that the
// cache entry is gone, not that the user has no session.
func (d *Directory) GetPointer(ctx context.Context, userID string) (*Pointer, error) {
	data, err := d.redis.Get(ctx, pointerKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var ptr Pointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return &ptr, nil
}

// DeletePointer drops the cached pointer. Deleting a missing pointer is
// a no-op.
func (d *Directory) DeletePointer(ctx context.Context, userID string) error {
	if err := d.redis.Del(ctx, pointerKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
