// Package event defines the inbound notification envelope, its closed set
// of event-type payload variants, and the classifier that turns raw broker
// bytes into a validated Event.
package event

import "time"

// Type is the enumerated event_type discriminator. A new variant is added by
// extending this set, adding cases to Parse's payload validation and typed
// decoding, and registering a handler for it on the dispatcher.
type Type string

const (
	InvoiceDueSoon           Type = "INVOICE_DUE_SOON"
	InvoiceOverdue           Type = "INVOICE_OVERDUE"
	ProfileDeletionScheduled Type = "PROFILE_DELETION_SCHEDULED"
)

// Recipient identifies who the rendered email is addressed to.
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Event is the parsed, validated NotificationEvent envelope.
type Event struct {
	MessageID   string         `json:"message_id"`
	Timestamp   time.Time      `json:"timestamp"`
	TriggerType string         `json:"trigger_type"`
	EventType   Type           `json:"event_type"`
	Recipient   Recipient      `json:"recipient"`
	Payload     map[string]any `json:"payload"`

	// TypedPayload holds the decoded payload variant matching EventType —
	// one of *InvoiceDueSoonPayload, *InvoiceOverduePayload or
	// *ProfileDeletionScheduledPayload. Handlers that need typed field
	// access (rather than the raw map Payload or TemplateContext) use this
	// instead of re-parsing Payload themselves.
	TypedPayload any `json:"-"`
}

// InvoiceDueSoonPayload is the payload shape for INVOICE_DUE_SOON.
type InvoiceDueSoonPayload struct {
	CreditCard      string    `json:"credit_card"`
	Month           int       `json:"month"`
	Year            int       `json:"year"`
	DueDate         time.Time `json:"due_date"`
	Amount          float64   `json:"amount"`
	InvoiceDeepLink string    `json:"invoice_deep_link"`
}

// InvoiceOverduePayload is the payload shape for INVOICE_OVERDUE: the same
// fields as InvoiceDueSoonPayload plus days_overdue.
type InvoiceOverduePayload struct {
	InvoiceDueSoonPayload
	DaysOverdue int `json:"days_overdue"`
}

// ProfileDeletionScheduledPayload is the payload shape for
// PROFILE_DELETION_SCHEDULED.
type ProfileDeletionScheduledPayload struct {
	DeletionScheduledAt       time.Time `json:"deletion_scheduled_at"`
	ReactivateAccountDeepLink string    `json:"reactivate_account_deep_link"`
}

// TemplateContext renders the event into the flat map handlers pass to the
// renderer (C2) as the template context.
func (e *Event) TemplateContext() map[string]any {
	ctx := map[string]any{
		"message_id":   e.MessageID,
		"timestamp":    e.Timestamp,
		"trigger_type": e.TriggerType,
		"recipient": map[string]any{
			"user_id": e.Recipient.UserID,
			"email":   e.Recipient.Email,
			"name":    e.Recipient.Name,
		},
	}
	for k, v := range e.Payload {
		ctx[k] = v
	}
	return ctx
}

// IdempotencyKey is the key under which delivery of this message is
// recorded once handling succeeds.
func (e *Event) IdempotencyKey() string {
	return "idempotency:" + e.MessageID
}
