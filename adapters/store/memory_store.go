package store

import (
	"context"
	"sync"
	"time"

	"github.com/phishguard/aegis/core"
	"github.com/phishguard/aegis/ports"
)

// MemoryStore is an in-memory implementation of the CredentialStore
// interface, used in tests and single-process deployments.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]userRecord // keyed by user id
	byEmail      map[string]string
	byUsername   map[string]string
	fingerprints map[string]fingerprintRecord
	singleUse    map[string]singleUseEntry // keyed by purpose + token hash
}

type userRecord struct {
	user         core.User
	passwordHash string
}

type fingerprintRecord struct {
	value     string
	expiresAt time.Time
}

type singleUseEntry struct {
	rec       core.SingleUseRecord
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]userRecord),
		byEmail:      make(map[string]string),
		byUsername:   make(map[string]string),
		fingerprints: make(map[string]fingerprintRecord),
		singleUse:    make(map[string]singleUseEntry),
	}
}

var _ ports.CredentialStore = (*MemoryStore)(nil)

// CreateUser stores a new user, enforcing username and email uniqueness.
func (s *MemoryStore) CreateUser(ctx context.Context, user core.User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return core.ErrDuplicateIdentity
	}
	if _, taken := s.byUsername[user.Username]; taken {
		return core.ErrDuplicateIdentity
	}

	s.users[user.ID] = userRecord{user: user, passwordHash: passwordHash}
	s.byEmail[user.Email] = user.ID
	s.byUsername[user.Username] = user.ID
	return nil
}

// UserByID returns the public user record.
func (s *MemoryStore) UserByID(ctx context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return rec.user, nil
}

// UserByEmail returns the public user record for the indexed email.
func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id].user, nil
}

// CredentialsByEmail returns the password hash for login verification.
func (s *MemoryStore) CredentialsByEmail(ctx context.Context, email string) (core.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return core.Credentials{}, core.ErrNotFound
	}
	return core.Credentials{UserID: id, PasswordHash: s.users[id].passwordHash}, nil
}

// CredentialsByID returns the password hash for password-change verification.
func (s *MemoryStore) CredentialsByID(ctx context.Context, id string) (core.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return core.Credentials{}, core.ErrNotFound
	}
	return core.Credentials{UserID: id, PasswordHash: rec.passwordHash}, nil
}

// UpdatePassword replaces the stored password hash.
func (s *MemoryStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	rec.passwordHash = passwordHash
	s.users[id] = rec
	return nil
}

// MarkEmailVerified flips the verification flag.
func (s *MemoryStore) MarkEmailVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	rec.user.EmailVerified = true
	s.users[id] = rec
	return nil
}

// SwapFingerprint performs the conditional fingerprint replacement under the
// store lock, giving the same compare-and-swap semantics as the Redis script.
func (s *MemoryStore) SwapFingerprint(ctx context.Context, userID, want, next string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if want != "" {
		cur, ok := s.fingerprints[userID]
		if !ok || time.Now().After(cur.expiresAt) || cur.value != want {
			return core.ErrInvalidToken
		}
	}

	s.fingerprints[userID] = fingerprintRecord{value: next, expiresAt: time.Now().Add(ttl)}
	return nil
}

// ClearFingerprint revokes all outstanding refresh tokens for the user.
func (s *MemoryStore) ClearFingerprint(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.fingerprints, userID)
	return nil
}

// PutSingleUse stores a single-use token record.
func (s *MemoryStore) PutSingleUse(ctx context.Context, purpose core.TokenPurpose, tokenHash string, rec core.SingleUseRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.singleUse[singleUseKey(purpose, tokenHash)] = singleUseEntry{rec: rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

// TakeSingleUse removes and returns the record in one step; the lock makes
// the read-and-delete indivisible for concurrent callers.
func (s *MemoryStore) TakeSingleUse(ctx context.Context, purpose core.TokenPurpose, tokenHash string) (core.SingleUseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := singleUseKey(purpose, tokenHash)
	entry, ok := s.singleUse[key]
	if !ok {
		return core.SingleUseRecord{}, core.ErrInvalidToken
	}
	delete(s.singleUse, key)

	if time.Now().After(entry.expiresAt) {
		return core.SingleUseRecord{}, core.ErrInvalidToken
	}
	return entry.rec, nil
}

func singleUseKey(purpose core.TokenPurpose, tokenHash string) string {
	return string(purpose) + ":" + tokenHash
}
