// Package dispatcher implements the event dispatcher (C5): idempotency
// check, handler lookup, handler invocation, and idempotency commit.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/event"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/idempotency"
	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

// Handler is the uniform capability every registered event_type dispatches
// to — a registry of a single capability interface keyed by event type.
type Handler interface {
	Handle(ctx context.Context, ev *event.Event, correlationID string) error
}

// Logger is the minimal structured-logging capability the dispatcher needs;
// satisfied by internal/logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}

// Dispatcher guards handler invocation with an idempotency check and commit.
type Dispatcher struct {
	store    idempotency.Store
	ttl      time.Duration
	handlers map[event.Type]Handler
	log      Logger
}

// New constructs a Dispatcher. The handler registry starts empty; register
// handlers with Register before calling Process. Registration is expected to
// be fixed at startup — nothing mutates the registry after the dispatcher
// starts serving deliveries.
func New(store idempotency.Store, ttl time.Duration, log Logger) *Dispatcher {
	if log == nil {
		log = noopLogger{}
	}
	return &Dispatcher{
		store:    store,
		ttl:      ttl,
		handlers: make(map[event.Type]Handler),
		log:      log,
	}
}

// Register adds (or replaces) the handler for an event_type. A handler alone
// does not make a new event type dispatchable: event.Parse rejects any type
// that has no payload case in pkg/event.
func (d *Dispatcher) Register(t event.Type, h Handler) {
	d.handlers[t] = h
}

// Process parses, deduplicates and dispatches one delivery. The returned
// bool is true iff a handler ran to completion and the idempotency record
// was committed; false means "duplicate, no side effects". Errors raised by
// parsing or by the dispatcher itself are *notifyerrors.Terminal or
// *notifyerrors.Transient; a handler's error is returned unchanged, so its
// kind is whatever the handler returned. The dispatcher never recovers from
// an error, leaving that decision to its caller.
func (d *Dispatcher) Process(ctx context.Context, body []byte, correlationID string) (bool, error) {
	ev, err := event.Parse(body)
	if err != nil {
		return false, err
	}

	key := ev.IdempotencyKey()
	exists, err := d.store.Exists(ctx, key)
	if err != nil {
		return false, notifyerrors.NewTransient("idempotency store exists check failed", err)
	}
	if exists {
		d.log.Info("duplicate delivery suppressed", "message_id", ev.MessageID, "correlation_id", correlationID)
		return false, nil
	}

	handler, ok := d.handlers[ev.EventType]
	if !ok {
		return false, notifyerrors.NewTerminal(notifyerrors.KindUnknownEventType, fmt.Sprintf("no handler registered for %q", ev.EventType), nil)
	}

	if err := handler.Handle(ctx, ev, correlationID); err != nil {
		return false, err
	}

	// Commit happens only after the handler succeeds: a crash between a
	// successful SMTP send and this Set yields at most one duplicate email
	// on redelivery, never a permanently suppressed message whose send
	// failed.
	if err := d.store.Set(ctx, key, d.ttl); err != nil {
		return false, notifyerrors.NewTransient("idempotency store commit failed", err)
	}

	d.log.Info("event processed", "message_id", ev.MessageID, "event_type", ev.EventType, "correlation_id", correlationID)
	return true, nil
}
