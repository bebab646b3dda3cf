package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"strings"
	"sync"
)

var (
	htmlLayout     *htmltmpl.Template
	htmlLayoutInit sync.Once
)

const htmlLayoutSrc = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}</body>
</html>`

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // text/plain content; the HTML part is derived from it

		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) renderHTML() error {
	htmlLayoutInit.Do(func() {
		htmlLayout = htmltmpl.Must(htmltmpl.New("layout").Parse(htmlLayoutSrc))
	})

	var paragraphs []string
	for _, p := range strings.Split(m.TextContent, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var buff bytes.Buffer
	data := struct {
		Subject    string
		Paragraphs []string
	}{m.Subject, paragraphs}
	if err := htmlLayout.Execute(&buff, data); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

// Render fills TextContent and HTMLContent from BodyStr.
func (m *EmailMessage) Render() error {
	if m.BodyStr == "" {
		return nil
	}
	m.TextContent = m.BodyStr
	return m.renderHTML()
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
