package core

import "time"

// User is the public identity record. The password hash is intentionally
// absent; it never leaves the credential store except as Credentials.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Credentials carries the stored password hash for verification.
type Credentials struct {
	UserID       string
	PasswordHash string
}

// TokenPurpose tags a single-use token with the flow it belongs to.
type TokenPurpose string

const (
	// PurposeVerifyEmail marks tokens minted for email verification.
	PurposeVerifyEmail TokenPurpose = "verify-email"

	// PurposeResetPassword marks tokens minted for password reset.
	PurposeResetPassword TokenPurpose = "reset-password"
)

// SingleUseRecord is the stored side of a single-use token. The token value
// itself is never persisted; the store keys records by SHA-256 of the value.
type SingleUseRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given moment.
func (r SingleUseRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
