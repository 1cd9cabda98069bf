package smtpmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mail "github.com/xhit/go-simple-mail/v2"
)

// Config describes the SMTP server and the sender identity.
type Config struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	AppName    string        `mapstructure:"app_name"`
	Encryption string        `mapstructure:"encryption"` // "starttls" (default), "ssltls" or "none"
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPTransport sends each message on a fresh SMTP connection.
type SMTPTransport struct {
	server *mail.SMTPServer
	from   string
}

func NewSMTPTransport(cfg Config) (*SMTPTransport, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp host and from address are required")
	}

	server := mail.NewSMTPClient()
	server.Host = cfg.Host
	server.Port = cfg.Port
	if server.Port == 0 {
		server.Port = 587
	}
	server.Username = cfg.Username
	server.Password = cfg.Password
	server.KeepAlive = false

	switch strings.ToLower(cfg.Encryption) {
	case "", "starttls":
		server.Encryption = mail.EncryptionSTARTTLS
	case "ssltls", "ssl", "tls":
		server.Encryption = mail.EncryptionSSLTLS
	case "none":
		server.Encryption = mail.EncryptionNone
	default:
		return nil, fmt.Errorf("unknown smtp encryption %q", cfg.Encryption)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	server.ConnectTimeout = timeout
	server.SendTimeout = timeout

	return &SMTPTransport{server: server, from: cfg.From}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := t.server.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	email := mail.NewMSG()
	email.SetFrom(t.from).AddTo(msg.To).SetSubject(msg.Subject)
	email.SetBody(mail.TextPlain, msg.Text)
	email.AddAlternative(mail.TextHTML, msg.HTML)
	if email.Error != nil {
		return email.Error
	}

	if err := email.Send(client); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Sender implements delivery.EmailSender.
type Sender struct {
	transport Transport
	renderer  *Renderer
	appName   string
	log       *slog.Logger
}

// New builds a Sender for cfg over SMTP.
func New(cfg Config, log *slog.Logger) (*Sender, error) {
	transport, err := NewSMTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(transport, cfg.AppName, log)
}

// NewWithTransport builds a Sender over any Transport.
func NewWithTransport(transport Transport, appName string, log *slog.Logger) (*Sender, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if appName == "" {
		appName = "authcore"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sender{transport: transport, renderer: renderer, appName: appName, log: log}, nil
}

func (s *Sender) SendVerificationEmail(ctx context.Context, to, code string) error {
	return s.send(ctx, templateVerification, Data{To: to, Code: code})
}

func (s *Sender) SendPasswordResetEmail(ctx context.Context, to, code string) error {
	return s.send(ctx, templatePasswordReset, Data{To: to, Code: code})
}

func (s *Sender) SendMagicLinkEmail(ctx context.Context, to, link string) error {
	return s.send(ctx, templateMagicLink, Data{To: to, Link: link})
}

func (s *Sender) send(ctx context.Context, name string, data Data) error {
	data.AppName = s.appName
	msg, err := s.renderer.Render(name, data)
	if err != nil {
		return err
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email sent", "template", name, "to", data.To)
	return nil
}

// LogTransport writes rendered messages to a logger instead of a server.
type LogTransport struct {
	Logger *slog.Logger
}

func (t LogTransport) Send(ctx context.Context, msg Message) error {
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "email not sent (log transport)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}
