package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendEmailService implements EmailService using Resend
type ResendEmailService struct {
	client *resend.Client
	config *EmailConfig
	logger *zap.Logger
}

func NewResendEmailService(config *EmailConfig, logger *zap.Logger) (*ResendEmailService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if config.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}

	return &ResendEmailService{
		client: resend.NewClient(config.APIKey),
		config: config,
		logger: logger.Named("email.resend"),
	}, nil
}

func (s *ResendEmailService) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return s.send(ctx, "welcome", to, "Welcome to Nour Hub", WelcomeEmailTemplate(name, s.config.AppURL))
}

func (s *ResendEmailService) SendInvitationEmail(ctx context.Context, msg InvitationMessage) error {
	subject := fmt.Sprintf("You have been invited to %s", msg.TenantName)
	return s.send(ctx, "invitation", msg.To, subject, InvitationEmailTemplate(msg, s.config.invitationURL(msg.Token)))
}

func (s *ResendEmailService) send(ctx context.Context, kind, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    s.config.sender(),
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Error("failed to send email", zap.String("kind", kind), zap.String("to", to), zap.Error(err))
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	s.logger.Info("email sent", zap.String("kind", kind), zap.String("to", to), zap.String("id", sent.Id))
	return nil
}
