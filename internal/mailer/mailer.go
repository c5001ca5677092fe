// Package mailer is the outbound email channel. The SMTP implementation
// rate-limits sends and distinguishes permanent from transient failures so
// the retry queue does not hammer a rejecting relay.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"flowdesk/internal/config"
	"flowdesk/pkg/logx"
)

// Channel delivers one message to one recipient. Implementations must be
// safe for concurrent use.
type Channel interface {
	// Send returns the provider message ID on success.
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// SendError wraps a delivery failure. Permanent failures (bad address,
// rejected sender) must not be retried.
type SendError struct {
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Permanent {
		return "permanent send failure: " + e.Err.Error()
	}
	return "transient send failure: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a SendError that should not be retried.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent
}

// New builds the channel for the configured mode.
func New(cfg config.MailerConfig, log logx.Logger) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "log":
		return &LogChannel{log: log.With(logx.String("channel", "email-log"))}, nil
	case "smtp":
		return NewSMTP(cfg, log), nil
	default:
		return nil, fmt.Errorf("mailer: unknown mode %q", cfg.Mode)
	}
}

// LogChannel pretends to deliver, logging the message instead. Used in
// development and in tests.
type LogChannel struct {
	log logx.Logger
}

func (c *LogChannel) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return "", &SendError{Permanent: true, Err: fmt.Errorf("invalid recipient %q: %w", to, err)}
	}
	id := "<" + uuid.NewString() + "@flowdesk.local>"
	c.log.Info("email (log mode)",
		logx.String("to", to),
		logx.String("subject", subject),
		logx.Int("body_bytes", len(body)),
		logx.String("message_id", id),
	)
	return id, nil
}

// SMTP delivers through a relay with STARTTLS and a token-bucket rate limit.
type SMTP struct {
	cfg     config.MailerConfig
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

func NewSMTP(cfg config.MailerConfig, log logx.Logger) *SMTP {
	per := cfg.RatePerSec
	if per <= 0 {
		per = 5
	}
	timeout, _ := config.ParseDurationOrDefault("mailer.send_timeout", cfg.SendTimeout, 10*time.Second)
	return &SMTP{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(per), per),
		timeout: timeout,
		log:     log.With(logx.String("channel", "email-smtp")),
	}
}

func (c *SMTP) Send(ctx context.Context, to, subject, body string) (string, error) {
	if _, err := mail.ParseAddress(to); err != nil {
		return "", &SendError{Permanent: true, Err: fmt.Errorf("invalid recipient %q: %w", to, err)}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	msgID := "<" + uuid.NewString() + "@" + c.cfg.Host + ">"
	raw, err := buildMessage(c.cfg.From, to, subject, msgID, body)
	if err != nil {
		return "", &SendError{Permanent: true, Err: err}
	}

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.relay(to, raw) }()
	select {
	case <-sctx.Done():
		return "", &SendError{Permanent: false, Err: sctx.Err()}
	case err := <-done:
		if err != nil {
			return "", err
		}
	}
	c.log.Debug("email sent", logx.String("to", to), logx.String("message_id", msgID))
	return msgID, nil
}
