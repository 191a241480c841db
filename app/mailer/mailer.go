package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"gopkg.in/gomail.v2"

	"github.com/vibast-solutions/ms-go-market-auth/config"
)

//go:embed templates/*
var templateFS embed.FS

// Renderer renders the HTML body of a template and, when a sibling .txt
// template exists, its plain text alternative.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func NewRenderer() (*Renderer, error) {
	html, err := htmltemplate.New("").Option("missingkey=zero").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	text, err := texttemplate.New("").Option("missingkey=zero").ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, err
	}
	return &Renderer{html: html, text: text}, nil
}

func (r *Renderer) Render(name string, data map[string]string) (html string, plain string, err error) {
	tmpl := r.html.Lookup(name)
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	html = buf.String()

	if textTmpl := r.text.Lookup(strings.TrimSuffix(name, ".html") + ".txt"); textTmpl != nil {
		buf.Reset()
		if err := textTmpl.Execute(&buf, data); err != nil {
			return "", "", err
		}
		plain = buf.String()
	}
	return html, plain, nil
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends templated emails over SMTP.
type Mailer struct {
	dialer   dialer
	from     string
	renderer *Renderer
}

func New(cfg config.SMTPConfig, renderer *Renderer) *Mailer {
	return &Mailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		renderer: renderer,
	}
}

func (m *Mailer) SendTemplate(ctx context.Context, to, subject, templateName string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	html, plain, err := m.renderer.Render(templateName, data)
	if err != nil {
		return err
	}
	return m.dialer.DialAndSend(buildMessage(m.from, to, subject, html, plain))
}

func buildMessage(from, to, subject, html, plain string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	if plain != "" {
		msg.SetBody("text/plain", plain)
		msg.AddAlternative("text/html", html)
	} else {
		msg.SetBody("text/html", html)
	}
	return msg
}
