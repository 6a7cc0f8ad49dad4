package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/referralhub/referralhub/internal/domain/staff"
)

// EmailSender delivers one email notification.
type EmailSender interface {
	SendEmail(ctx context.Context, to *staff.Staff, subject, body string) error
}

// SMSSender delivers one SMS notification.
type SMSSender interface {
	SendSMS(ctx context.Context, to *staff.Staff, body string) error
}

// SlackSender posts one message to the team channel.
type SlackSender interface {
	SendSlack(ctx context.Context, text string) error
}

// LogEmailSender writes outbound email to the log instead of a provider.
// Deployments plug a real provider behind EmailSender.
type LogEmailSender struct {
	logger zerolog.Logger
}

func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("sender", "email").Logger()}
}

func (s *LogEmailSender) SendEmail(_ context.Context, to *staff.Staff, subject, body string) error {
	s.logger.Info().
		Str("to", to.Email).
		Str("subject", subject).
		Str("body", body).
		Msg("email sent")
	return nil
}

// LogSMSSender writes outbound SMS to the log instead of a gateway.
type LogSMSSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger.With().Str("sender", "sms").Logger()}
}

func (s *LogSMSSender) SendSMS(_ context.Context, to *staff.Staff, body string) error {
	phone := "unknown"
	if to.Phone != nil {
		phone = *to.Phone
	}
	s.logger.Info().
		Str("to", phone).
		Str("body", body).
		Msg("sms sent")
	return nil
}

// SlackWebhookSender posts to a Slack incoming webhook.
type SlackWebhookSender struct {
	webhookURL string
	client     *http.Client
}

func NewSlackWebhookSender(webhookURL string) *SlackWebhookSender {
	return &SlackWebhookSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackWebhookSender) SendSlack(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
