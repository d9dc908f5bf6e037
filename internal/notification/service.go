// Package notification delivers email through the SendGrid v3 API.
package notification

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultHost  = "https://api.sendgrid.com"
	sendEndpoint = "/v3/mail/send"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds the SendGrid credentials and sender identity.
type Config struct {
	APIKey      string
	FromName    string
	FromAddress string
	// Host overrides the API host, mostly for tests.
	Host string
}

// ConfigFromEnv reads SENDGRID_API_KEY, ALERT_EMAIL_FROM and
// ALERT_EMAIL_FROM_NAME.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:      os.Getenv("SENDGRID_API_KEY"),
		FromName:    os.Getenv("ALERT_EMAIL_FROM_NAME"),
		FromAddress: os.Getenv("ALERT_EMAIL_FROM"),
	}
	if cfg.FromName == "" {
		cfg.FromName = "kwhmedio"
	}
	return cfg
}

func (c Config) Enabled() bool {
	return c.APIKey != "" && c.FromAddress != ""
}

type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	return &Service{cfg: cfg}
}

// SendEmail sends one message to a single recipient. body is sent both as
// plain text and as html.
func (s *Service) SendEmail(ctx context.Context, to, subject, body string) error {
	if !s.cfg.Enabled() {
		return ErrNotConfigured
	}

	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromAddress)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, body)

	req := sendgrid.GetRequest(s.cfg.APIKey, sendEndpoint, s.cfg.Host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
