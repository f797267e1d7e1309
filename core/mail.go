package core

import (
	"bytes"
	"embed"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed templates/email/*.txt
var templateFS embed.FS

var (
	templates map[string]*texttmpl.Template // {name: *Template}
	tmplErr   error
	tmplInit  sync.Once

	errUnknownTemplate = errors.New("unknown email template")
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
	}

	ContextData struct {
		AppName string
		Data    interface{}
	}

	// EmailService is any service that can send emails.
	// Sending is best-effort: implementations log failures instead of returning them,
	// so a caller's durable work is never rolled back because of a notification.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent from BodyStr or from the named template.
func (m *EmailMessage) Render(appName string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmplInit.Do(parseTemplates) // only parse once
	if tmplErr != nil {
		return errors.Wrap(tmplErr, "parsing email templates")
	}
	tmpl, ok := templates[m.TemplateName]
	if !ok {
		return errors.Wrap(errUnknownTemplate, m.TemplateName)
	}

	var buff bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buff, "base", ContextData{AppName: appName, Data: m.TemplateData}); err != nil {
		return errors.Wrapf(err, "executing template %s", m.TemplateName)
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }

func parseTemplates() {
	templates = make(map[string]*texttmpl.Template)

	fps, err := templateFS.ReadDir("templates/email")
	if err != nil {
		tmplErr = err
		return
	}
	base := path.Join("templates", "email", "_base.txt")
	for _, fp := range fps {
		fname := fp.Name()
		if strings.HasPrefix(fname, "_") || path.Ext(fname) != ".txt" {
			continue
		}
		tmpl, err := texttmpl.New(fname).Option("missingkey=error").
			ParseFS(templateFS, base, path.Join("templates", "email", fname))
		if err != nil {
			tmplErr = err
			return
		}
		templates[strings.TrimSuffix(fname, ".txt")] = tmpl
	}
}
