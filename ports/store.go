package ports

import (
	"context"
	"time"

	"github.com/phishguard/aegis/core"
)

// CredentialStore persists user identity records, the per-user refresh
// fingerprint, and single-use token records over a key-value backend.
type CredentialStore interface {
	// CreateUser stores a new user. Returns core.ErrDuplicateIdentity when
	// the username or email is already indexed.
	CreateUser(ctx context.Context, user core.User, passwordHash string) error

	// UserByID returns the public record, or core.ErrNotFound.
	UserByID(ctx context.Context, id string) (core.User, error)

	// UserByEmail returns the public record, or core.ErrNotFound.
	UserByEmail(ctx context.Context, email string) (core.User, error)

	// CredentialsByEmail returns the password hash for login verification.
	CredentialsByEmail(ctx context.Context, email string) (core.Credentials, error)

	// CredentialsByID returns the password hash for password-change verification.
	CredentialsByID(ctx context.Context, id string) (core.Credentials, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// MarkEmailVerified flips the verification flag.
	MarkEmailVerified(ctx context.Context, id string) error

	// SwapFingerprint replaces the stored refresh fingerprint in a single
	// conditional update. With want == "" the swap is unconditional (login,
	// password change); otherwise it succeeds only while the stored value
	// still equals want, and returns core.ErrInvalidToken on a mismatch.
	// The new value expires together with the refresh token it fingerprints.
	SwapFingerprint(ctx context.Context, userID, want, next string, ttl time.Duration) error

	// ClearFingerprint revokes all outstanding refresh tokens for the user.
	// Clearing an absent fingerprint is not an error.
	ClearFingerprint(ctx context.Context, userID string) error

	// PutSingleUse stores a single-use record keyed by purpose and token hash.
	PutSingleUse(ctx context.Context, purpose core.TokenPurpose, tokenHash string, rec core.SingleUseRecord, ttl time.Duration) error

	// TakeSingleUse atomically removes and returns the record. A second take
	// of the same hash, however closely raced, returns core.ErrInvalidToken.
	TakeSingleUse(ctx context.Context, purpose core.TokenPurpose, tokenHash string) (core.SingleUseRecord, error)
}
