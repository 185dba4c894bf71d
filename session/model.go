package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session id has no audit record.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps pointer-cache transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Record is one row of the durable login audit trail. A nil LogoutTime
// means the session is still open. TotalTime is always derived from
// LoginTime at close; it is never written directly.
type Record struct {
	ID         string
	UserID     string
	IPAddress  string
	UserAgent  string
	LoginTime  time.Time
	LogoutTime *time.Time
	TotalTime  time.Duration
}

// Open reports whether the session has not been closed yet.
func (r *Record) Open() bool {
	return r != nil && r.LogoutTime == nil
}

// Pointer is the cached most-recent-session entry kept in Redis per user.
// It is a convenience cache only; its absence proves nothing.
type Pointer struct {
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
	CreatedAt    int64  `json:"created_at"`
}
