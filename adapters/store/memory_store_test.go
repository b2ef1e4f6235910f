package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phishguard/aegis/core"
)

func testUser(id, username, email string) core.User {
	return core.User{ID: id, Username: username, Email: email, CreatedAt: time.Now()}
}

func TestCreateUserDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateUser(ctx, testUser("u1", "alice", "alice@x.com"), "hash"))

	err := s.CreateUser(ctx, testUser("u2", "alice", "other@x.com"), "hash")
	require.True(t, errors.Is(err, core.ErrDuplicateIdentity))

	err = s.CreateUser(ctx, testUser("u3", "bob", "alice@x.com"), "hash")
	require.True(t, errors.Is(err, core.ErrDuplicateIdentity))
}

func TestUserLookups(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateUser(ctx, testUser("u1", "alice", "alice@x.com"), "hash"))

	byID, err := s.UserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)

	byEmail, err := s.UserByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, "u1", byEmail.ID)

	creds, err := s.CredentialsByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, "hash", creds.PasswordHash)

	_, err = s.UserByEmail(ctx, "nobody@x.com")
	require.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSwapFingerprint(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Unconditional swap installs the first fingerprint.
	require.NoError(t, s.SwapFingerprint(ctx, "u1", "", "fp1", time.Hour))

	// Conditional swap succeeds only against the current value.
	require.NoError(t, s.SwapFingerprint(ctx, "u1", "fp1", "fp2", time.Hour))

	err := s.SwapFingerprint(ctx, "u1", "fp1", "fp3", time.Hour)
	require.True(t, errors.Is(err, core.ErrInvalidToken))

	// After clearing, conditional swaps fail until a new login installs one.
	require.NoError(t, s.ClearFingerprint(ctx, "u1"))
	err = s.SwapFingerprint(ctx, "u1", "fp2", "fp3", time.Hour)
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestSwapFingerprintConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SwapFingerprint(ctx, "u1", "", "fp1", time.Hour))

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.SwapFingerprint(ctx, "u1", "fp1", "fp2", time.Hour) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var won int
	for range wins {
		won++
	}
	require.Equal(t, 1, won)
}

func TestTakeSingleUseOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := core.SingleUseRecord{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.PutSingleUse(ctx, core.PurposeVerifyEmail, "hash1", rec, time.Hour))

	got, err := s.TakeSingleUse(ctx, core.PurposeVerifyEmail, "hash1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)

	_, err = s.TakeSingleUse(ctx, core.PurposeVerifyEmail, "hash1")
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestTakeSingleUseWrongPurpose(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := core.SingleUseRecord{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.PutSingleUse(ctx, core.PurposeVerifyEmail, "hash1", rec, time.Hour))

	_, err := s.TakeSingleUse(ctx, core.PurposeResetPassword, "hash1")
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestTakeSingleUseExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := core.SingleUseRecord{UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, s.PutSingleUse(ctx, core.PurposeResetPassword, "hash1", rec, -time.Minute))

	_, err := s.TakeSingleUse(ctx, core.PurposeResetPassword, "hash1")
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestUpdatePasswordAndVerify(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateUser(ctx, testUser("u1", "alice", "alice@x.com"), "old"))

	require.NoError(t, s.UpdatePassword(ctx, "u1", "new"))
	creds, err := s.CredentialsByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "new", creds.PasswordHash)

	require.NoError(t, s.MarkEmailVerified(ctx, "u1"))
	user, err := s.UserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, user.EmailVerified)
}
