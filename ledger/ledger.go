package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a jti has no ledger record. Missing and
// expired records are indistinguishable once Redis drops the key.
var ErrNotFound = errors.New("refresh token record not found")

// ErrRevoked is returned when the record exists but has been revoked.
var ErrRevoked = errors.New("refresh token revoked")

// ErrExpired is returned when the record outlived its stamped expiry but
// the key has not been evicted yet.
var ErrExpired = errors.New("refresh token expired")

// ErrCorrupt is returned when a stored record fails to decode.
var ErrCorrupt = errors.New("refresh token record corrupt")

// ErrRedisUnavailable wraps transport and script failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	recordKeyPrefix    = "refresh_token:"
	blacklistKeyPrefix = "blacklist:session:"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRevoked  int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// rotateScript closes the validate-then-write race: the old record is
// checked, revoked and the successor written in one atomic step. The old
// record keeps its remaining TTL so the revocation marker outlives any
// copy of the old token.
const rotateScript = `
local old_key = KEYS[1]
local new_key = KEYS[2]
local now = tonumber(ARGV[1])
local new_blob = ARGV[2]
local new_ttl_ms = tonumber(ARGV[3])

local data = redis.call("GET", old_key)
if not data then
  return 0
end

local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" then
  return 4
end

if rec.is_revoked then
  return 1
end

if rec.expires_at and tonumber(rec.expires_at) <= now then
  return 2
end

rec.is_revoked = true
local ttl = redis.call("PTTL", old_key)
if ttl > 0 then
  redis.call("SET", old_key, cjson.encode(rec), "PX", ttl)
else
  redis.call("SET", old_key, cjson.encode(rec))
end

redis.call("SET", new_key, new_blob, "PX", new_ttl_ms)
return 3
`

var rotateLua = redis.NewScript(rotateScript)

// revokeScript flips is_revoked in place while preserving the remaining
// TTL, so the record stays visible as revoked until natural expiry.
const revokeScript = `
local key = KEYS[1]

local data = redis.call("GET", key)
if not data then
  return 0
end

local ok, rec = pcall(cjson.decode, data)
if not ok or type(rec) ~= "table" then
  return 4
end

rec.is_revoked = true
local ttl = redis.call("PTTL", key)
if ttl > 0 then
  redis.call("SET", key, cjson.encode(rec), "PX", ttl)
else
  redis.call("SET", key, cjson.encode(rec))
end
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Record is one entry in the revocation ledger. Every refresh token ever
// issued has exactly one record for as long as it could still be replayed.
type Record struct {
	JTI       string `json:"jti"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	IsRevoked bool   `json:"is_revoked"`
}

// Store is the Redis-backed revocation ledger for refresh tokens, plus
// the session blacklist used by bulk logout.
type Store struct {
	redis redis.UniversalClient
}

func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{redis: rdb}
}

func recordKey(jti string) string {
	return recordKeyPrefix + jti
}

func blacklistKey(sessionID string) string {
	return blacklistKeyPrefix + sessionID
}

// Issue writes a fresh record for jti with TTL equal to the token's
// remaining validity. Failure here must abort token issuance.
func (s *Store) Issue(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: non-positive record ttl", ErrRedisUnavailable)
	}

	now := time.Now()
	rec := Record{
		JTI:       jti,
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, recordKey(jti), blob, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches a record. ErrNotFound covers evicted and never-issued jtis
// alike.
func (s *Store) Get(ctx context.Context, jti string) (*Record, error) {
	data, err := s.redis.Get(ctx, recordKey(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &rec, nil
}

// Check reports whether jti is still usable. The error classifies the
// rejection: ErrNotFound, ErrRevoked, ErrExpired or a transport failure.
func (s *Store) Check(ctx context.Context, jti string) error {
	rec, err := s.Get(ctx, jti)
	if err != nil {
		return err
	}
	if rec.IsRevoked {
		return ErrRevoked
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		return ErrExpired
	}
	return nil
}

// Revoke marks a record revoked while keeping its remaining TTL. Revoking
// a missing record is a no-op.
func (s *Store) Revoke(ctx context.Context, jti string) error {
	res, err := revokeLua.Run(ctx, s.redis, []string{recordKey(jti)}).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, ok := res.(int64)
	if !ok {
		return fmt.Errorf("%w: invalid revoke script status", ErrRedisUnavailable)
	}
	if code == rotateStatusCorrupt {
		return ErrCorrupt
	}
	return nil
}

// Rotate atomically retires oldJTI and issues newJTI in its place. The
// caller must not mint tokens unless Rotate returns nil.
func (s *Store) Rotate(ctx context.Context, newJTI, userID string, ttl time.Duration, oldJTI string) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: non-positive record ttl", ErrRedisUnavailable)
	}

	now := time.Now()
	rec := Record{
		JTI:       newJTI,
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	res, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{recordKey(oldJTI), recordKey(newJTI)},
		now.Unix(),
		blob,
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, ok := res.(int64)
	if !ok {
		return fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusRevoked:
		return ErrRevoked
	case rotateStatusExpired:
		return ErrExpired
	case rotateStatusRotated:
		return nil
	case rotateStatusCorrupt:
		return ErrCorrupt
	default:
		return fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// BlacklistSession marks a session id as force-terminated for the given
// window. Refresh and validation reject blacklisted sessions outright.
func (s *Store) BlacklistSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := s.redis.Set(ctx, blacklistKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsSessionBlacklisted reports whether a session id carries a blacklist
// marker. Marker expiry is acceptable because the tokens bound to the
// session expire on the same horizon.
func (s *Store) IsSessionBlacklisted(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, blacklistKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
