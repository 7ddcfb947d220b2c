package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names known to the renderer.
const (
	TemplateWelcome     = "welcome"
	TemplateVerifyEmail = "verify-email"
)

var templateFuncs = template.FuncMap{
	"currentYear": func() int { return time.Now().Year() },
	// unique per message
	"uuid": func() string { return uuid.NewString() },
}

// Renderer turns a template name and data into an HTML body.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	t := r.tmpl.Lookup(name + ".html")
	if t == nil {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	if data == nil {
		data = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
