package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPRateLimited      = errors.New("otp send rate limited")
	ErrOTPRedisUnavailable = errors.New("otp limiter redis unavailable")
)

// OTPConfig throttles code sends per identifier and per IP within a
// fixed window.
type OTPConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxSends                 int
}

type OTPLimiter struct {
	redis  redis.UniversalClient
	config OTPConfig
}

func NewOTPLimiter(redisClient redis.UniversalClient, cfg OTPConfig) *OTPLimiter {
	return &OTPLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSend enforces the send throttle for one purpose/identifier pair.
// Verification attempts are not limited here; the single-use consume
// semantics bound those already.
func (l *OTPLimiter) CheckSend(ctx context.Context, purpose, identifier, ip string) error {
	if l.config.EnableIdentifierThrottle {
		if err := l.enforceFixedWindow(ctx, sendIdentifierKey(purpose, identifier)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, sendIPKey(purpose, ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *OTPLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxSends) {
		return ErrOTPRateLimited
	}

	return nil
}

func sendIdentifierKey(purpose, identifier string) string {
	return "otp:send:" + purpose + ":" + identifier
}

func sendIPKey(purpose, ip string) string {
	return "otp:sendip:" + purpose + ":" + ip
}
