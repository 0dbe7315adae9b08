package service

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

// Template placeholders.
const (
	placeholderList   = "[lista]"
	placeholderCourse = "[curso]"
	placeholderNote   = "[observacao]"
)

// NotificationTemplate is the payment notice text. Body and Subject may use the
// [lista], [curso] and [observacao] placeholders.
type NotificationTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// DefaultNotificationTemplate is used when no template file is configured.
func DefaultNotificationTemplate() NotificationTemplate {
	return NotificationTemplate{
		Subject: "Pagamento realizado - [curso]",
		Body: "Olá,\n\n" +
			"Informamos que a FAEPA realizou os pagamentos abaixo, referentes ao curso [curso]:\n\n" +
			"[lista]\n\n" +
			"Observação: [observacao]\n\n" +
			"Atenciosamente,\nFAEPA",
	}
}

// LoadNotificationTemplate reads a YAML template file. An empty path yields the
// default template and missing keys fall back to their defaults.
func LoadNotificationTemplate(path string) (NotificationTemplate, error) {
	tpl := DefaultNotificationTemplate()
	if strings.TrimSpace(path) == "" {
		return tpl, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return tpl, fmt.Errorf("read notification template: %w", err)
	}
	var custom NotificationTemplate
	if err := yaml.Unmarshal(raw, &custom); err != nil {
		return tpl, fmt.Errorf("parse notification template: %w", err)
	}
	if strings.TrimSpace(custom.Subject) != "" {
		tpl.Subject = custom.Subject
	}
	if strings.TrimSpace(custom.Body) != "" {
		tpl.Body = custom.Body
	}
	return tpl, nil
}

// NoticeLine is one paid provider in the notice list.
type NoticeLine struct {
	Name  string
	Value string
}

// NoticeData feeds the template.
type NoticeData struct {
	Course string
	Lines  []NoticeLine
	Note   string
}

// RenderedNotice is a notice ready to be mailed.
type RenderedNotice struct {
	Subject string
	Text    string
	HTML    string
}

var noticeLayout = template.Must(template.New("notice").Parse(`<!DOCTYPE html>
<html lang="pt-BR"><head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family:Arial,sans-serif;font-size:14px;color:#222">
<h2 style="font-size:16px">{{.Subject}}</h2>
<div>{{.Body}}</div>
</body></html>`))

// noticePolicy keeps basic formatting in free-text notes and strips everything else.
var noticePolicy = bluemonday.UGCPolicy()

// Render fills the placeholders for both the text and HTML bodies.
func (t NotificationTemplate) Render(data NoticeData) (RenderedNotice, error) {
	textLines := make([]string, len(data.Lines))
	htmlItems := make([]string, len(data.Lines))
	for i, line := range data.Lines {
		entry := line.Name + " — " + line.Value
		textLines[i] = "• " + entry
		htmlItems[i] = "<li>" + html.EscapeString(entry) + "</li>"
	}
	note := strings.TrimSpace(data.Note)

	text := strings.NewReplacer(
		placeholderList, strings.Join(textLines, "\n"),
		placeholderCourse, data.Course,
		placeholderNote, note,
	).Replace(t.Body)
	subject := strings.NewReplacer(
		placeholderList, "",
		placeholderCourse, data.Course,
		placeholderNote, note,
	).Replace(t.Subject)
	subject = strings.Join(strings.Fields(subject), " ")

	escaped := strings.ReplaceAll(html.EscapeString(t.Body), "\n", "<br>\n")
	body := strings.NewReplacer(
		placeholderList, "<ul>"+strings.Join(htmlItems, "")+"</ul>",
		placeholderCourse, html.EscapeString(data.Course),
		placeholderNote, noticePolicy.Sanitize(note),
	).Replace(escaped)

	var buf bytes.Buffer
	if err := noticeLayout.Execute(&buf, struct {
		Subject string
		Body    template.HTML
	}{Subject: subject, Body: template.HTML(body)}); err != nil { //nolint:gosec // body is escaped and sanitized above
		return RenderedNotice{}, fmt.Errorf("render notice html: %w", err)
	}

	return RenderedNotice{Subject: subject, Text: text, HTML: buf.String()}, nil
}
