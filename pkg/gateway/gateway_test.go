package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/gsoultan/gsmail"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

type fakeSender struct {
	lastEmail gsmail.Email
	sendErr   error
	sendCalls int
}

func (f *fakeSender) Send(ctx context.Context, email gsmail.Email) error {
	f.sendCalls++
	f.lastEmail = email
	return f.sendErr
}

func (f *fakeSender) Ping(ctx context.Context) error { return nil }

func TestSend_HappyPath(t *testing.T) {
	fs := &fakeSender{}
	g := newWithSender(fs, "noreply@example.com")

	err := g.Send(context.Background(), "jane@example.com", "subject", "<p>hi</p>", "corr-1")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if fs.sendCalls != 1 {
		t.Fatalf("expected exactly one SMTP send, got %d", fs.sendCalls)
	}
	if fs.lastEmail.To[0] != "jane@example.com" {
		t.Fatalf("unexpected recipient: %v", fs.lastEmail.To)
	}
}

func TestSend_ConnectionFailureIsTransient(t *testing.T) {
	fs := &fakeSender{sendErr: errors.New("connection refused")}
	g := newWithSender(fs, "noreply@example.com")

	err := g.Send(context.Background(), "jane@example.com", "subject", "<p>hi</p>", "corr-1")
	if _, ok := notifyerrors.IsTransient(err); !ok {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestSend_NotConfiguredIsTransient(t *testing.T) {
	g := newWithSender(&fakeSender{}, "")

	err := g.Send(context.Background(), "jane@example.com", "subject", "<p>hi</p>", "corr-1")
	if _, ok := notifyerrors.IsTransient(err); !ok {
		t.Fatalf("expected transient error for unconfigured gateway, got %v", err)
	}
}
