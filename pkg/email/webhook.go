package email

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookEmailService posts email jobs to an external mailer endpoint.
type WebhookEmailService struct {
	client *resty.Client
	config *EmailConfig
	logger *zap.Logger
}

type webhookRequest struct {
	Type    string            `json:"type"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Data    map[string]string `json:"data,omitempty"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewWebhookEmailService(config *EmailConfig, logger *zap.Logger) (*WebhookEmailService, error) {
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("email webhook URL is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookEmailService{
		client: client,
		config: config,
		logger: logger.Named("email.webhook"),
	}, nil
}

func (s *WebhookEmailService) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return s.post(ctx, &webhookRequest{
		Type:    "welcome",
		To:      to,
		Subject: "Welcome to Nour Hub",
		HTML:    WelcomeEmailTemplate(name, s.config.AppURL),
		Data:    map[string]string{"name": name},
	})
}

func (s *WebhookEmailService) SendInvitationEmail(ctx context.Context, msg InvitationMessage) error {
	link := s.config.invitationURL(msg.Token)
	return s.post(ctx, &webhookRequest{
		Type:    "invitation",
		To:      msg.To,
		Subject: fmt.Sprintf("You have been invited to %s", msg.TenantName),
		HTML:    InvitationEmailTemplate(msg, link),
		Data: map[string]string{
			"tenant": msg.TenantName,
			"role":   msg.Role,
			"link":   link,
		},
	})
}

func (s *WebhookEmailService) post(ctx context.Context, req *webhookRequest) error {
	var out webhookResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(s.config.WebhookURL)
	if err != nil {
		s.logger.Error("email webhook request failed", zap.String("kind", req.Type), zap.Error(err))
		return fmt.Errorf("failed to send %s email: %w", req.Type, err)
	}

	if resp.IsError() || !out.Success {
		s.logger.Warn("email webhook rejected message",
			zap.String("kind", req.Type),
			zap.Int("status", resp.StatusCode()),
			zap.String("error", out.Error),
		)
		return fmt.Errorf("email webhook returned status %d: %s", resp.StatusCode(), out.Error)
	}

	s.logger.Debug("email queued", zap.String("kind", req.Type), zap.String("to", req.To))
	return nil
}
