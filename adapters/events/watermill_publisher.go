package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/phishguard/aegis/ports"
)

const (
	// TopicVerificationMail carries email-verification token events.
	TopicVerificationMail = "auth.mail.verification"

	// TopicPasswordResetMail carries password-reset token events.
	TopicPasswordResetMail = "auth.mail.password-reset"
)

// MailEvent is the payload handed to the mail pipeline. The token is the raw
// single-use value; the subscriber embeds it in the link it sends out.
type MailEvent struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishVerificationMail emits an email-verification event.
func (p *WatermillPublisher) PublishVerificationMail(ctx context.Context, email, username, token string) error {
	return p.publish(TopicVerificationMail, MailEvent{Email: email, Username: username, Token: token})
}

// PublishPasswordResetMail emits a password-reset event.
func (p *WatermillPublisher) PublishPasswordResetMail(ctx context.Context, email, username, token string) error {
	return p.publish(TopicPasswordResetMail, MailEvent{Email: email, Username: username, Token: token})
}

func (p *WatermillPublisher) publish(topic string, event MailEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
