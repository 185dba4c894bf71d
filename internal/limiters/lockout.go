package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig controls the failed-login counter that drives automatic
// account lockout.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration // rolling window; 0 keeps the counter until reset
}

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutLimiter counts consecutive failed logins per principal. When
// RecordFailure reports the threshold reached, the caller writes the
// lock through the credential store; the limiter itself locks nothing.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) key(userID string) string {
	return "lockout:fail:" + userID
}

// RecordFailure increments the failure counter. Returns true once the
// configured threshold is reached.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string) (bool, error) {
	if !l.config.Enabled || userID == "" {
		return false, nil
	}

	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count == 1 && l.config.Window > 0 {
		// TTL on first failure makes the counter a rolling window.
		if err := l.redis.Expire(ctx, l.key(userID), l.config.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	return count >= int64(l.config.Threshold), nil
}

// Reset clears the counter after a successful login or a manual unlock.
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if !l.config.Enabled || userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// GetFailureCount reads the current counter without mutating it.
func (l *LockoutLimiter) GetFailureCount(ctx context.Context, userID string) (int, error) {
	if !l.config.Enabled || userID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
