package authcore

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp"

var (
	errOTPNotFound         = errors.New("otp record not found")
	errOTPMismatch         = errors.New("otp code mismatch")
	errOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// otpRecord is the JSON blob stored per purpose/identifier pair. Redis
// TTL is the only expiry mechanism; once the key is gone, expired and
// never-sent are indistinguishable.
type otpRecord struct {
	UserID    string `json:"user_id"`
	Code      string `json:"code"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

type otpStore struct {
	redis *redis.Client
}

func newOTPStore(redisClient *redis.Client) *otpStore {
	return &otpStore{redis: redisClient}
}

func (s *otpStore) key(purpose OTPPurpose, identifier string) string {
	return otpKeyPrefix + ":" + string(purpose) + ":" + identifier
}

// Save writes the record, replacing any unconsumed predecessor. Only the
// latest sent code is ever valid.
func (s *otpStore) Save(ctx context.Context, purpose OTPPurpose, identifier string, record *otpRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(purpose, identifier), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
	}
	return nil
}

// Consume verifies and deletes the record in one atomic step. A correct
// code can be spent exactly once even under concurrent attempts; a wrong
// code leaves the record intact for retry within its TTL.
func (s *otpStore) Consume(ctx context.Context, purpose OTPPurpose, identifier, code string) (*otpRecord, error) {
	const maxRetries = 4
	key := s.key(purpose, identifier)

	for i := 0; i < maxRetries; i++ {
		var matched *otpRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var record otpRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errOTPNotFound
			}

			if len(code) != len(record.Code) ||
				subtle.ConstantTimeCompare([]byte(code), []byte(record.Code)) != 1 {
				return errOTPMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = &record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errOTPNotFound
			case errors.Is(err, errOTPNotFound), errors.Is(err, errOTPMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errOTPNotFound
}
