package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg *gomail.Msg) error
}

// SMTPConfig configures SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of "opportunistic" (default), "mandatory", "ssl" or "none".
	TLS     string
	Timeout time.Duration
}

// SMTPSender delivers over SMTP.
type SMTPSender struct {
	mu     sync.Mutex
	client *gomail.Client
}

// NewSMTPSender creates an SMTP transport. No connection is made until the
// first Send.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	var opts []gomail.Option
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	switch cfg.TLS {
	case "", "opportunistic":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	case "mandatory":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case "ssl":
		opts = append(opts, gomail.WithSSL())
	case "none":
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		return nil, fmt.Errorf("unknown TLS mode %q", cfg.TLS)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}
	return &SMTPSender{client: client}, nil
}

// Send dials, delivers msg and closes the connection.
func (s *SMTPSender) Send(ctx context.Context, msg *gomail.Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending via SMTP: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It is
// meant for local development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg *gomail.Msg) error {
	raw, err := Raw(msg)
	if err != nil {
		return err
	}
	s.logger.Info("contact email (log transport, not delivered)", zap.ByteString("message", raw))
	return nil
}
