package email

import (
	"context"
	"time"
)

// EmailService sends the transactional mail of the platform.
type EmailService interface {
	// SendWelcomeEmail greets a user after sign-up.
	SendWelcomeEmail(ctx context.Context, to, name string) error

	// SendInvitationEmail delivers a tenant invitation link.
	SendInvitationEmail(ctx context.Context, msg InvitationMessage) error
}

type InvitationMessage struct {
	To          string
	TenantName  string
	Role        string
	InviterName string
	Token       string
	ExpiresAt   time.Time
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	WebhookURL string
	AppURL     string        // base URL used to build links in messages
	Timeout    time.Duration // HTTP request timeout
}

func (c *EmailConfig) sender() string {
	return c.FromName + " <" + c.FromEmail + ">"
}

func (c *EmailConfig) invitationURL(token string) string {
	return c.AppURL + "/invitations/accept?token=" + token
}

// NoopEmailService discards every message. Used when email is disabled.
type NoopEmailService struct{}

func (NoopEmailService) SendWelcomeEmail(context.Context, string, string) error { return nil }

func (NoopEmailService) SendInvitationEmail(context.Context, InvitationMessage) error { return nil }
