package ports

import "context"

// EventPublisher hands single-use tokens to the out-of-band mail pipeline.
type EventPublisher interface {
	// PublishVerificationMail emits an email-verification event carrying the
	// raw single-use token.
	PublishVerificationMail(ctx context.Context, email, username, token string) error

	// PublishPasswordResetMail emits a password-reset event carrying the raw
	// single-use token.
	PublishPasswordResetMail(ctx context.Context, email, username, token string) error
}
