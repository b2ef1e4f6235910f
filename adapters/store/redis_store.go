package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phishguard/aegis/core"
	"github.com/phishguard/aegis/ports"
)

const keyPrefix = "aegis:"

// swapFingerprintScript replaces the stored refresh fingerprint in a single
// Redis round trip. An empty expected value makes the swap unconditional;
// otherwise the swap only happens while the stored fingerprint still equals
// the expected one, which is what rejects replayed (already rotated) tokens.
var swapFingerprintScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if ARGV[1] == "" or cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// createUserScript installs the user record and both uniqueness indexes in
// one atomic step, so a rejected or interrupted create can never leave a
// dangling index key behind.
var createUserScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[2])
return 1
`)

// RedisStore is a Redis implementation of the CredentialStore interface.
// Users are stored as JSON records with separate index keys for the unique
// email and username constraints.
type RedisStore struct {
	client *redis.Client
}

type redisUserRecord struct {
	User         core.User `json:"user"`
	PasswordHash string    `json:"password_hash"`
}

// NewRedisStore creates a new Redis credential store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ ports.CredentialStore = (*RedisStore)(nil)

func userKey(id string) string          { return keyPrefix + "user:" + id }
func emailIndexKey(email string) string { return keyPrefix + "index:email:" + email }
func usernameIndexKey(name string) string {
	return keyPrefix + "index:username:" + name
}
func fingerprintKey(userID string) string { return keyPrefix + "fingerprint:" + userID }
func singleUseRedisKey(purpose core.TokenPurpose, tokenHash string) string {
	return keyPrefix + "otp:" + string(purpose) + ":" + tokenHash
}

// CreateUser stores a new user. The script checks both uniqueness indexes
// and writes the indexes and the record together, so the create either fully
// happens or leaves nothing behind.
func (s *RedisStore) CreateUser(ctx context.Context, user core.User, passwordHash string) error {
	payload, err := json.Marshal(redisUserRecord{User: user, PasswordHash: passwordHash})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	res, err := createUserScript.Run(ctx, s.client,
		[]string{emailIndexKey(user.Email), usernameIndexKey(user.Username), userKey(user.ID)},
		user.ID, payload).Int()
	if err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	if res != 1 {
		return core.ErrDuplicateIdentity
	}

	return nil
}

func (s *RedisStore) getUserRecord(ctx context.Context, id string) (redisUserRecord, error) {
	payload, err := s.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return redisUserRecord{}, core.ErrNotFound
		}
		return redisUserRecord{}, fmt.Errorf("failed to load user: %w", err)
	}

	var rec redisUserRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return redisUserRecord{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) resolveEmail(ctx context.Context, email string) (string, error) {
	id, err := s.client.Get(ctx, emailIndexKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve email: %w", err)
	}
	return id, nil
}

// UserByID returns the public user record.
func (s *RedisStore) UserByID(ctx context.Context, id string) (core.User, error) {
	rec, err := s.getUserRecord(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	return rec.User, nil
}

// UserByEmail returns the public user record for the indexed email.
func (s *RedisStore) UserByEmail(ctx context.Context, email string) (core.User, error) {
	id, err := s.resolveEmail(ctx, email)
	if err != nil {
		return core.User{}, err
	}
	return s.UserByID(ctx, id)
}

// CredentialsByEmail returns the password hash for login verification.
func (s *RedisStore) CredentialsByEmail(ctx context.Context, email string) (core.Credentials, error) {
	id, err := s.resolveEmail(ctx, email)
	if err != nil {
		return core.Credentials{}, err
	}
	return s.CredentialsByID(ctx, id)
}

// CredentialsByID returns the password hash for password-change verification.
func (s *RedisStore) CredentialsByID(ctx context.Context, id string) (core.Credentials, error) {
	rec, err := s.getUserRecord(ctx, id)
	if err != nil {
		return core.Credentials{}, err
	}
	return core.Credentials{UserID: rec.User.ID, PasswordHash: rec.PasswordHash}, nil
}

// UpdatePassword replaces the stored password hash.
func (s *RedisStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	rec, err := s.getUserRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.PasswordHash = passwordHash
	return s.putUserRecord(ctx, rec)
}

// MarkEmailVerified flips the verification flag.
func (s *RedisStore) MarkEmailVerified(ctx context.Context, id string) error {
	rec, err := s.getUserRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.User.EmailVerified = true
	return s.putUserRecord(ctx, rec)
}

func (s *RedisStore) putUserRecord(ctx context.Context, rec redisUserRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.client.Set(ctx, userKey(rec.User.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// SwapFingerprint replaces the stored refresh fingerprint via the Lua script,
// making verify-and-rotate a single conditional update.
func (s *RedisStore) SwapFingerprint(ctx context.Context, userID, want, next string, ttl time.Duration) error {
	res, err := swapFingerprintScript.Run(ctx, s.client,
		[]string{fingerprintKey(userID)}, want, next, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to swap fingerprint: %w", err)
	}
	if res != 1 {
		return core.ErrInvalidToken
	}
	return nil
}

// ClearFingerprint revokes all outstanding refresh tokens for the user.
func (s *RedisStore) ClearFingerprint(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, fingerprintKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear fingerprint: %w", err)
	}
	return nil
}

// PutSingleUse stores a single-use token record with its TTL.
func (s *RedisStore) PutSingleUse(ctx context.Context, purpose core.TokenPurpose, tokenHash string, rec core.SingleUseRecord, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal single-use record: %w", err)
	}
	if err := s.client.Set(ctx, singleUseRedisKey(purpose, tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store single-use record: %w", err)
	}
	return nil
}

// TakeSingleUse consumes the record with GETDEL, so of two concurrent takers
// exactly one sees the value and the other sees redis.Nil.
func (s *RedisStore) TakeSingleUse(ctx context.Context, purpose core.TokenPurpose, tokenHash string) (core.SingleUseRecord, error) {
	payload, err := s.client.GetDel(ctx, singleUseRedisKey(purpose, tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.SingleUseRecord{}, core.ErrInvalidToken
		}
		return core.SingleUseRecord{}, fmt.Errorf("failed to take single-use record: %w", err)
	}

	var rec core.SingleUseRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return core.SingleUseRecord{}, fmt.Errorf("failed to unmarshal single-use record: %w", err)
	}

	if rec.Expired(time.Now()) {
		return core.SingleUseRecord{}, core.ErrInvalidToken
	}
	return rec, nil
}
