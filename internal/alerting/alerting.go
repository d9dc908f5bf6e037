package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/kwhmedio/internal/log"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// EmailTo lists recipients of the email channel, which also needs a
	// Mailer on the Alerter.
	EmailTo []string
	Enabled bool
	// MinFailuresBeforeAlert is the number of failed targets in one run
	// needed before an alert goes out.
	MinFailuresBeforeAlert int
	Timeout                time.Duration
}

// DefaultAlertConfig returns config from environment variables.
func DefaultAlertConfig() AlertConfig {
	cfg := AlertConfig{
		WebhookURL:             os.Getenv("ALERT_WEBHOOK_URL"),
		WebhookType:            os.Getenv("ALERT_WEBHOOK_TYPE"),
		MinFailuresBeforeAlert: 1,
		Timeout:                10 * time.Second,
	}
	for _, addr := range strings.Split(os.Getenv("ALERT_EMAIL_TO"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			cfg.EmailTo = append(cfg.EmailTo, addr)
		}
	}

	cfg.Enabled = cfg.WebhookURL != "" || len(cfg.EmailTo) > 0

	if cfg.WebhookType == "" {
		// Auto-detect from URL
		switch {
		case strings.Contains(cfg.WebhookURL, "hooks.slack.com"):
			cfg.WebhookType = "slack"
		case strings.Contains(cfg.WebhookURL, "discord.com"):
			cfg.WebhookType = "discord"
		default:
			cfg.WebhookType = "generic"
		}
	}

	if v := os.Getenv("ALERT_MIN_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinFailuresBeforeAlert = n
		}
	}

	return cfg
}

// Mailer delivers the email channel, see notification.Service.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Alerter sends alerts to the configured webhook and email recipients.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	mailer Mailer
}

func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// WithMailer enables the email channel.
func (a *Alerter) WithMailer(m Mailer) *Alerter {
	a.mailer = m
	return a
}

// WarmupAlert summarizes one cache warm-up run.
type WarmupAlert struct {
	JobName      string
	RunID        string
	TotalCount   int
	SuccessCount int
	FailedCount  int
	Duration     time.Duration
	Failures     []TargetFailure
	Timestamp    time.Time
}

// TargetFailure is one dataset the run could not refresh, e.g. "flags" or
// "copel B1/Convencional/Residencial".
type TargetFailure struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// SendWarmupAlert posts alert to every channel when the run failed often
// enough. It is a no-op when alerting is disabled.
func (a *Alerter) SendWarmupAlert(ctx context.Context, alert WarmupAlert) error {
	logger := log.Ctx(ctx)
	if !a.cfg.Enabled {
		logger.Debug("alerting: alerts disabled, skipping")
		return nil
	}

	if alert.FailedCount < a.cfg.MinFailuresBeforeAlert {
		logger.Debug("alerting: failures below threshold, skipping",
			"failed", alert.FailedCount, "threshold", a.cfg.MinFailuresBeforeAlert)
		return nil
	}

	var errs []error
	if a.cfg.WebhookURL != "" {
		if err := a.postWebhook(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	if a.mailer != nil && len(a.cfg.EmailTo) > 0 {
		subject, body := emailContent(alert)
		for _, to := range a.cfg.EmailTo {
			if err := a.mailer.SendEmail(ctx, to, subject, body); err != nil {
				errs = append(errs, fmt.Errorf("email %s: %w", to, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info("alerting: sent warm-up alert", "failed", alert.FailedCount, "run_id", alert.RunID)
	return nil
}

func (a *Alerter) postWebhook(ctx context.Context, alert WarmupAlert) error {
	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}

	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func emailContent(alert WarmupAlert) (subject, body string) {
	subject = fmt.Sprintf("[kwhmedio] %s: %d/%d targets failed", alert.JobName, alert.FailedCount, alert.TotalCount)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Run %s finished at %s in %s.</p>\n<ul>\n",
		alert.RunID, alert.Timestamp.Format(time.RFC3339), alert.Duration.Round(time.Millisecond))
	for _, f := range alert.Failures {
		fmt.Fprintf(&b, "<li><b>%s</b>: %s</li>\n", html.EscapeString(f.Target), html.EscapeString(f.Error))
	}
	b.WriteString("</ul>\n")
	return subject, b.String()
}

func failureList(alert WarmupAlert, bold string) string {
	var b strings.Builder
	for _, f := range alert.Failures {
		fmt.Fprintf(&b, "• %s%s%s: %s\n", bold, f.Target, bold, f.Error)
	}
	return b.String()
}

func buildSlackPayload(alert WarmupAlert) ([]byte, error) {
	emoji := ":warning:"
	if alert.FailedCount == alert.TotalCount {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Cache Warm-up Alert: %s", emoji, alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Status:*\n%d/%d failed", alert.FailedCount, alert.TotalCount)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Run:*\n%s", alert.RunID)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": "*Failed Targets:*\n" + failureList(alert, "*"),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func buildDiscordPayload(alert WarmupAlert) ([]byte, error) {
	color := 16776960 // yellow
	if alert.FailedCount == alert.TotalCount {
		color = 16711680 // red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Cache Warm-up Alert: %s", alert.JobName),
				"description": fmt.Sprintf("%d/%d targets failed", alert.FailedCount, alert.TotalCount),
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Success", "value": strconv.Itoa(alert.SuccessCount), "inline": true},
					{"name": "Failed", "value": strconv.Itoa(alert.FailedCount), "inline": true},
					{"name": "Duration", "value": alert.Duration.Round(time.Millisecond).String(), "inline": true},
					{"name": "Failed Targets", "value": failureList(alert, "**"), "inline": false},
				},
				"footer":    map[string]string{"text": alert.RunID},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func buildGenericPayload(alert WarmupAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":    "cache_warmup_failure",
		"job_name":      alert.JobName,
		"run_id":        alert.RunID,
		"total_count":   alert.TotalCount,
		"success_count": alert.SuccessCount,
		"failed_count":  alert.FailedCount,
		"duration_ms":   alert.Duration.Milliseconds(),
		"timestamp":     alert.Timestamp.Format(time.RFC3339),
		"failures":      alert.Failures,
	}

	return json.Marshal(payload)
}
