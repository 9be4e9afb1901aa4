package renderer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/POUPE-AI/poupeai-notification-service/pkg/notifyerrors"
)

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

func TestRender_HappyPath(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "hello.html.tmpl", `<p>Hi {{.name}}, <script>{{.name}}</script></p>`)

	r, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render("hello.html.tmpl", map[string]any{"name": "<b>Jane</b>"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "<b>Jane</b>") {
		t.Fatalf("expected HTML auto-escaping, got: %s", out)
	}
	if !strings.Contains(out, "&lt;b&gt;Jane&lt;/b&gt;") {
		t.Fatalf("expected escaped name in output, got: %s", out)
	}
}

func TestRender_TemplateNotFound(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "hello.html.tmpl", `hi`)

	r, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = r.Render("missing.html.tmpl", nil)
	term, ok := notifyerrors.IsTerminal(err)
	if !ok {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if term.Kind != notifyerrors.KindTemplateNotFound {
		t.Fatalf("kind = %s, want %s", term.Kind, notifyerrors.KindTemplateNotFound)
	}
}

func TestRender_StrictMissingKey(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "hello.html.tmpl", `Hi {{.name}}, due {{.due_date}}`)

	r, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = r.Render("hello.html.tmpl", map[string]any{"name": "Jane"})
	term, ok := notifyerrors.IsTerminal(err)
	if !ok {
		t.Fatalf("expected terminal error for missing key, got %v", err)
	}
	if term.Kind != notifyerrors.KindTemplateRenderError {
		t.Fatalf("kind = %s, want %s", term.Kind, notifyerrors.KindTemplateRenderError)
	}
}
