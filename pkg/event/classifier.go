package event

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

// wireEnvelope mirrors the JSON-over-broker wire format before validation.
// timestamp is kept as a raw string so a malformed value can be reported as
// a schema error rather than a generic unmarshal failure.
type wireEnvelope struct {
	MessageID   string         `json:"message_id"`
	Timestamp   string         `json:"timestamp"`
	TriggerType string         `json:"trigger_type"`
	EventType   string         `json:"event_type"`
	Recipient   wireRecipient  `json:"recipient"`
	Payload     map[string]any `json:"payload"`
}

type wireRecipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Parse validates raw broker bytes into an Event. Every error returned is a
// *notifyerrors.Terminal — malformed input will not become valid on retry.
func Parse(body []byte) (*Event, error) {
	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, notifyerrors.NewTerminal(notifyerrors.KindMalformedJSON, "body is not valid JSON", err)
	}

	if w.MessageID == "" {
		return nil, schemaErr("message_id is required", nil)
	}
	if _, err := uuid.Parse(w.MessageID); err != nil {
		return nil, schemaErr("message_id must be a UUID", err)
	}

	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return nil, schemaErr("timestamp must be ISO-8601 UTC", err)
	}

	if w.Recipient.Email == "" {
		return nil, schemaErr("recipient.email is required", nil)
	}
	if _, err := mail.ParseAddress(w.Recipient.Email); err != nil {
		return nil, schemaErr("recipient.email is not a valid address", err)
	}
	if w.Recipient.UserID == "" {
		return nil, schemaErr("recipient.user_id is required", nil)
	}

	et := Type(w.EventType)
	if err := validatePayload(et, w.Payload); err != nil {
		return nil, err
	}

	typed, err := decodeTypedPayload(et, w.Payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		MessageID:   w.MessageID,
		Timestamp:   ts.UTC(),
		TriggerType: w.TriggerType,
		EventType:   et,
		Recipient: Recipient{
			UserID: w.Recipient.UserID,
			Email:  w.Recipient.Email,
			Name:   w.Recipient.Name,
		},
		Payload:      w.Payload,
		TypedPayload: typed,
	}, nil
}

func schemaErr(detail string, err error) *notifyerrors.Terminal {
	return notifyerrors.NewTerminal(notifyerrors.KindSchemaValidation, detail, err)
}

// validatePayload checks that payload's shape matches event_type. It does
// not reject unknown extra fields (forward compatibility with producers),
// only missing required ones.
func validatePayload(et Type, payload map[string]any) error {
	switch et {
	case InvoiceDueSoon:
		return requireFields(payload, "credit_card", "month", "year", "due_date", "amount", "invoice_deep_link")
	case InvoiceOverdue:
		if err := requireFields(payload, "credit_card", "month", "year", "due_date", "amount", "invoice_deep_link", "days_overdue"); err != nil {
			return err
		}
		return nil
	case ProfileDeletionScheduled:
		return requireFields(payload, "deletion_scheduled_at", "reactivate_account_deep_link")
	default:
		return notifyerrors.NewTerminal(notifyerrors.KindUnknownEventType, fmt.Sprintf("event_type %q is not registered", et), nil)
	}
}

func requireFields(payload map[string]any, fields ...string) error {
	for _, f := range fields {
		v, ok := payload[f]
		if !ok {
			return schemaErr(fmt.Sprintf("payload.%s is required for this event_type", f), nil)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return schemaErr(fmt.Sprintf("payload.%s must not be empty", f), nil)
		}
	}
	// due_date / deletion_scheduled_at must parse as ISO-8601 when present.
	for _, f := range []string{"due_date", "deletion_scheduled_at"} {
		if v, ok := payload[f]; ok {
			s, isStr := v.(string)
			if !isStr {
				return schemaErr(fmt.Sprintf("payload.%s must be an ISO-8601 string", f), nil)
			}
			if _, err := parseFlexibleDate(s); err != nil {
				return schemaErr(fmt.Sprintf("payload.%s is not a parseable date", f), err)
			}
		}
	}
	return nil
}

// parseFlexibleDate accepts either a full RFC3339 timestamp or a bare
// "2006-01-02" date, matching what requireFields already lets through.
func parseFlexibleDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// payloadNumber reads a JSON number field. encoding/json decodes all bare
// numbers into map[string]any as float64, regardless of whether the source
// literal had a decimal point.
func payloadNumber(payload map[string]any, key string) float64 {
	n, _ := payload[key].(float64)
	return n
}

func payloadTime(payload map[string]any, key string) time.Time {
	s, _ := payload[key].(string)
	t, _ := parseFlexibleDate(s)
	return t
}

// decodeTypedPayload extracts the event-type-specific payload variant out of
// the raw payload map. validatePayload has already confirmed the fields this
// reads are present and, for date fields, parseable. The field readers do not
// report conversion failures: a value of an unexpected JSON type decodes to
// its zero value. The only error returned is UnknownEventType for a type
// without a case here.
func decodeTypedPayload(et Type, payload map[string]any) (any, error) {
	switch et {
	case InvoiceDueSoon:
		return decodeInvoiceDueSoon(payload), nil
	case InvoiceOverdue:
		return &InvoiceOverduePayload{
			InvoiceDueSoonPayload: *decodeInvoiceDueSoon(payload),
			DaysOverdue:           int(payloadNumber(payload, "days_overdue")),
		}, nil
	case ProfileDeletionScheduled:
		return &ProfileDeletionScheduledPayload{
			DeletionScheduledAt:       payloadTime(payload, "deletion_scheduled_at"),
			ReactivateAccountDeepLink: payloadString(payload, "reactivate_account_deep_link"),
		}, nil
	default:
		return nil, notifyerrors.NewTerminal(notifyerrors.KindUnknownEventType, fmt.Sprintf("event_type %q is not registered", et), nil)
	}
}

func decodeInvoiceDueSoon(payload map[string]any) *InvoiceDueSoonPayload {
	return &InvoiceDueSoonPayload{
		CreditCard:      payloadString(payload, "credit_card"),
		Month:           int(payloadNumber(payload, "month")),
		Year:            int(payloadNumber(payload, "year")),
		DueDate:         payloadTime(payload, "due_date"),
		Amount:          payloadNumber(payload, "amount"),
		InvoiceDeepLink: payloadString(payload, "invoice_deep_link"),
	}
}
