package smtpmail

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"strings"
	texttmpl "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	templateVerification  = "verification"
	templatePasswordReset = "password_reset"
	templateMagicLink     = "magic_link"
)

// Data is what every template receives.
type Data struct {
	AppName string
	To      string
	Code    string
	Link    string
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type compiled struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

// Renderer renders the embedded templates. Templates are parsed once.
type Renderer struct {
	templates map[string]compiled
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]compiled)}
	for _, name := range []string{templateVerification, templatePasswordReset, templateMagicLink} {
		file := "templates/" + name + ".tmpl"
		text, err := texttmpl.ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		html, err := htmltmpl.ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.templates[name] = compiled{text: text, html: html}
	}
	return r, nil
}

// Render produces the message for template name.
func (r *Renderer) Render(name string, data Data) (Message, error) {
	c, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := c.text.ExecuteTemplate(&buf, "subject", data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	msg := Message{To: data.To, Subject: strings.TrimSpace(buf.String())}

	buf.Reset()
	if err := c.text.ExecuteTemplate(&buf, "email_text", data); err != nil {
		return Message{}, fmt.Errorf("render email_text: %w", err)
	}
	msg.Text = buf.String()

	buf.Reset()
	if err := c.html.ExecuteTemplate(&buf, "email_html", data); err != nil {
		return Message{}, fmt.Errorf("render email_html: %w", err)
	}
	msg.HTML = buf.String()
	return msg, nil
}
