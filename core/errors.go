package core

import "errors"

var (
	// ErrDuplicateIdentity is returned when a username or email is already taken.
	ErrDuplicateIdentity = errors.New("username or email already in use")

	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers malformed, rotated-away, and already consumed
	// tokens of every kind.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenExpired is returned when a token's signature is fine but its
	// lifetime is over.
	ErrTokenExpired = errors.New("token has expired")

	// ErrAlreadyVerified is returned when re-requesting verification for a
	// verified account.
	ErrAlreadyVerified = errors.New("email is already verified")

	// ErrUnauthorized is returned when a protected call carries no usable credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is the store-level miss for users and indexes.
	ErrNotFound = errors.New("not found")
)
