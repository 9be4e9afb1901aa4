// Package renderer implements the template renderer (C2): it turns a
// template name and a context map into a rendered HTML email body.
//
// This is the one place the implementation reaches for the standard library
// over a third-party templating engine — see DESIGN.md for why.
package renderer

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

// Renderer loads every template in a fixed directory once at construction
// and renders by name thereafter. Auto-escaping is enabled because
// html/template (not text/template) is used, so interpolated recipient data
// can never break out of the HTML body.
type Renderer struct {
	templates *template.Template
}

// New parses every "*.html.tmpl" file under dir. Missing-key access in a
// template is treated as a render error rather than silently rendering
// "<no value>".
func New(dir string) (*Renderer, error) {
	pattern := filepath.Join(dir, "*.html.tmpl")
	tmpl, err := template.New("").Option("missingkey=error").ParseGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("renderer: parse templates in %s: %w", dir, err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render produces the email body for the named template. Both failure modes
// (missing template, render error) are terminal: a misconfigured template
// cannot be fixed by retrying the same event.
func (r *Renderer) Render(name string, ctx map[string]any) (string, error) {
	t := r.templates.Lookup(name)
	if t == nil {
		return "", notifyerrors.NewTerminal(notifyerrors.KindTemplateNotFound, name, nil)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", notifyerrors.NewTerminal(notifyerrors.KindTemplateRenderError, name, err)
	}
	return buf.String(), nil
}
