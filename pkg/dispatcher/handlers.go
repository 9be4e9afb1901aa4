package dispatcher

import (
	"context"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/event"
)

// Renderer is the renderer capability a handler needs (satisfied by
// pkg/renderer.Renderer), defined locally so handlers can be unit-tested
// against a fake without importing html/template.
type Renderer interface {
	Render(name string, ctx map[string]any) (string, error)
}

// Gateway is the email-sending capability a handler needs (satisfied by
// pkg/gateway.Gateway).
type Gateway interface {
	Send(ctx context.Context, to, subject, htmlBody, correlationID string) error
}

// emailHandler renders the named template and sends it to the event's
// recipient with a fixed subject line. All three registered event types
// share this shape; only the template name and subject vary.
type emailHandler struct {
	templateName string
	subject      string
	renderer     Renderer
	gateway      Gateway
}

// NewEmailHandler builds the uniform render-then-send handler used for
// every registered event_type.
func NewEmailHandler(templateName, subject string, renderer Renderer, gateway Gateway) Handler {
	return &emailHandler{templateName: templateName, subject: subject, renderer: renderer, gateway: gateway}
}

func (h *emailHandler) Handle(ctx context.Context, ev *event.Event, correlationID string) error {
	body, err := h.renderer.Render(h.templateName, ev.TemplateContext())
	if err != nil {
		return err
	}
	if err := h.gateway.Send(ctx, ev.Recipient.Email, h.subject, body, correlationID); err != nil {
		return err
	}
	return nil
}

// RegisterDefaultHandlers wires the three closed-set event types onto a
// Dispatcher, sharing one renderer and one gateway instance.
func RegisterDefaultHandlers(d *Dispatcher, renderer Renderer, gateway Gateway) {
	d.Register(event.InvoiceDueSoon, NewEmailHandler(
		"invoice_due_soon.html.tmpl",
		"Your invoice is due soon",
		renderer, gateway,
	))
	d.Register(event.InvoiceOverdue, NewEmailHandler(
		"invoice_overdue.html.tmpl",
		"Your invoice is overdue",
		renderer, gateway,
	))
	d.Register(event.ProfileDeletionScheduled, NewEmailHandler(
		"profile_deletion_scheduled.html.tmpl",
		"Your profile deletion is scheduled",
		renderer, gateway,
	))
}
