package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/doyensec/safeurl"
)

var ErrWebhookRejected = errors.New("sms webhook rejected message")

const (
	verificationText  = "Your %s verification code is %s"
	passwordResetText = "Your %s password reset code is %s"
)

func render(format, appName, code string) string {
	if appName == "" {
		appName = "authcore"
	}
	return fmt.Sprintf(format, appName, code)
}

// LogSender logs messages instead of sending them.
type LogSender struct {
	AppName string
	log     *slog.Logger
}

func NewLogSender(appName string, log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{AppName: appName, log: log}
}

func (s *LogSender) SendVerificationSMS(ctx context.Context, to, code string) error {
	s.log.InfoContext(ctx, "sms not sent (log sender)", "to", to, "message", render(verificationText, s.AppName, code))
	return nil
}

func (s *LogSender) SendPasswordResetSMS(ctx context.Context, to, code string) error {
	s.log.InfoContext(ctx, "sms not sent (log sender)", "to", to, "message", render(passwordResetText, s.AppName, code))
	return nil
}

// WebhookConfig configures a WebhookSender.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	AppName string        `mapstructure:"app_name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type webhookPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// WebhookSender posts {"to", "message"} to a gateway URL. A bearer token is
// attached when configured.
type WebhookSender struct {
	cfg    WebhookConfig
	client *http.Client
	log    *slog.Logger
}

// NewWebhookSender builds a sender whose HTTP client refuses private,
// loopback and link-local destinations.
func NewWebhookSender(cfg WebhookConfig, log *slog.Logger) (*WebhookSender, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	safe := safeurl.Client(safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build())
	return NewWebhookSenderWithClient(cfg, safe.Client, log)
}

// NewWebhookSenderWithClient uses client as-is.
func NewWebhookSenderWithClient(cfg WebhookConfig, client *http.Client, log *slog.Logger) (*WebhookSender, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, fmt.Errorf("invalid sms webhook url %q", cfg.URL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookSender{cfg: cfg, client: client, log: log}, nil
}

func (s *WebhookSender) SendVerificationSMS(ctx context.Context, to, code string) error {
	return s.post(ctx, to, render(verificationText, s.cfg.AppName, code))
}

func (s *WebhookSender) SendPasswordResetSMS(ctx context.Context, to, code string) error {
	return s.post(ctx, to, render(passwordResetText, s.cfg.AppName, code))
}

func (s *WebhookSender) post(ctx context.Context, to, message string) error {
	body, err := json.Marshal(webhookPayload{To: to, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}
	s.log.InfoContext(ctx, "sms sent", "to", to)
	return nil
}
