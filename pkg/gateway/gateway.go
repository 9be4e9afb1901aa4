// Package gateway implements the email gateway (C3): it transmits an
// already-rendered HTML body over SMTP. Every failure mode here is
// transient — a misbehaving SMTP server is the broker retry loop's
// problem to bound, not the dispatcher's to diagnose.
package gateway

import (
	"context"
	"fmt"

	"github.com/gsoultan/gsmail"
	"github.com/gsoultan/gsmail/smtp"
	"golang.org/x/time/rate"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

// sender is the subset of gsmail.Sender the gateway uses, defined locally so
// tests can inject a fake instead of a real SMTP connection.
type sender interface {
	Send(ctx context.Context, email gsmail.Email) error
	Ping(ctx context.Context) error
}

// Config holds the SMTP connection and identity settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	From     string
	FromName string
	// RateLimitPerSecond caps outbound sends; zero means unlimited. Guards
	// against hammering the SMTP server during a retry storm.
	RateLimitPerSecond float64
}

// Gateway sends rendered emails via SMTP.
type Gateway struct {
	sender     sender
	from       string
	configured bool
	limiter    *rate.Limiter
}

// New builds a Gateway from Config. An empty Host/Port/Username is not
// rejected here — configuration absence is only reported as a transient
// failure on the first send attempt, so operators can fix it and let the
// broker's retry naturally recover.
func New(cfg Config) *Gateway {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	}

	return &Gateway{
		sender:     smtp.NewSender(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.SSL),
		from:       from,
		configured: cfg.Host != "" && cfg.Port != 0 && cfg.Username != "" && cfg.From != "",
		limiter:    limiter,
	}
}

// newWithSender is used by tests to inject a fake sender.
func newWithSender(s sender, from string) *Gateway {
	return &Gateway{sender: s, from: from, configured: from != ""}
}

// Send builds and transmits the email. Any failure — connect, handshake,
// auth, protocol — is wrapped as transient, since none of it indicates a
// problem with the event itself.
func (g *Gateway) Send(ctx context.Context, to, subject, htmlBody, correlationID string) error {
	if !g.configured {
		return notifyerrors.NewTransient("gateway not configured: missing host/port/login/from", nil)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return notifyerrors.NewTransient("rate limiter wait interrupted", err)
		}
	}

	email := gsmail.Email{
		From:    g.from,
		To:      []string{to},
		Subject: subject,
		Body:    []byte(htmlBody),
	}

	if err := g.sender.Send(ctx, email); err != nil {
		return notifyerrors.NewTransient(fmt.Sprintf("smtp send failed (correlation_id=%s)", correlationID), err)
	}
	return nil
}

// Ping verifies SMTP connectivity. cmd/notifyd does not call it at startup.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.sender.Ping(ctx); err != nil {
		return notifyerrors.NewTransient("smtp ping failed", err)
	}
	return nil
}
