package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phishguard/aegis/core"
)

func newTestTokenizer(t *testing.T, accessTTL, refreshTTL time.Duration) *JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key, accessTTL, refreshTTL).(*JWTTokenizer)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t, time.Minute, time.Hour)

	token, err := tk.IssueAccessToken("user-1")
	require.NoError(t, err)

	userID, err := tk.VerifyAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestAccessTokenExpired(t *testing.T) {
	tk := newTestTokenizer(t, -time.Second, time.Hour)

	token, err := tk.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = tk.VerifyAccessToken(token)
	require.True(t, errors.Is(err, core.ErrTokenExpired))
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t, time.Minute, time.Hour)

	token, fingerprint, err := tk.IssueRefreshToken("user-2")
	require.NoError(t, err)
	require.Equal(t, Fingerprint(token), fingerprint)

	userID, presented, err := tk.VerifyRefreshToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-2", userID)
	require.Equal(t, fingerprint, presented)
}

func TestTokenTypeConfusionRejected(t *testing.T) {
	tk := newTestTokenizer(t, time.Minute, time.Hour)

	access, err := tk.IssueAccessToken("user-3")
	require.NoError(t, err)
	refresh, _, err := tk.IssueRefreshToken("user-3")
	require.NoError(t, err)

	// An access token must not pass as a refresh token, nor the reverse.
	_, _, err = tk.VerifyRefreshToken(access)
	require.True(t, errors.Is(err, core.ErrInvalidToken))

	_, err = tk.VerifyAccessToken(refresh)
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestForeignKeyRejected(t *testing.T) {
	tk := newTestTokenizer(t, time.Minute, time.Hour)
	other := newTestTokenizer(t, time.Minute, time.Hour)

	token, err := other.IssueAccessToken("user-4")
	require.NoError(t, err)

	_, err = tk.VerifyAccessToken(token)
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestMalformedToken(t *testing.T) {
	tk := newTestTokenizer(t, time.Minute, time.Hour)

	_, err := tk.VerifyAccessToken("not.a.jwt")
	require.True(t, errors.Is(err, core.ErrInvalidToken))
}
