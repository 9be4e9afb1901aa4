// Package notifyerrors classifies processing failures into the two kinds the
// rest of the pipeline cares about: terminal (never retried, dead-lettered
// immediately) and transient (retried up to a bound, then dead-lettered).
//
// Handlers and the dispatcher only ever construct and return these; only the
// broker consumer inspects them, keeping classification authority in one
// place per the propagation policy.
package notifyerrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the terminal error varieties the classifier (C1), renderer
// (C2) and dispatcher (C5) can raise.
type Kind string

const (
	KindMalformedJSON       Kind = "malformed_json"
	KindSchemaValidation    Kind = "schema_validation"
	KindUnknownEventType    Kind = "unknown_event_type"
	KindTemplateNotFound    Kind = "template_not_found"
	KindTemplateRenderError Kind = "template_render_error"
)

// Terminal wraps a failure whose cause will not change on retry. The broker
// consumer dead-letters the delivery immediately on seeing one.
type Terminal struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Terminal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Terminal) Unwrap() error { return e.Err }

// NewTerminal constructs a Terminal error of the given kind.
func NewTerminal(kind Kind, detail string, err error) *Terminal {
	return &Terminal{Kind: kind, Detail: detail, Err: err}
}

// Transient wraps a failure likely to resolve on retry: SMTP connect/auth/
// timeout, broker publish faults, idempotency-store I/O. The consumer
// recycles it through the retry exchange until MAX_RETRIES is exhausted.
type Transient struct {
	Detail string
	Err    error
}

func (e *Transient) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("transient: %s", e.Detail)
}

func (e *Transient) Unwrap() error { return e.Err }

// NewTransient constructs a Transient error.
func NewTransient(detail string, err error) *Transient {
	return &Transient{Detail: detail, Err: err}
}

// IsTerminal reports whether err is (or wraps) a Terminal error.
func IsTerminal(err error) (*Terminal, bool) {
	var t *Terminal
	ok := errors.As(err, &t)
	return t, ok
}

// IsTransient reports whether err is (or wraps) a Transient error.
func IsTransient(err error) (*Transient, bool) {
	var t *Transient
	ok := errors.As(err, &t)
	return t, ok
}
