package scheduler

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultMessageTemplate renders one alert listing every matching item. It
// uses Slack mrkdwn, where a single asterisk pair is bold.
const DefaultMessageTemplate = `📚 *Due Date Alert*
{{- range .Items }}
• *{{ .Title }}* is due in *{{ abs .DueInDays }} {{ if eq (abs .DueInDays) 1 }}day{{ else }}days{{ end }}*{{ if .DueDate }} (Due Date: {{ .DueDate }}){{ end }}.
{{- end }}
Please return or renew {{ if gt (len .Items) 1 }}them{{ else }}it{{ end }} soon!`

// MessageData is the value a message template is executed against.
type MessageData struct {
	User  RegisteredUser
	Items []DueItem
}

// MessageRenderer turns matching items into alert text.
type MessageRenderer struct {
	tmpl *template.Template
}

// NewMessageRenderer parses text as a text/template with the sprig
// functions available. An empty text selects DefaultMessageTemplate.
func NewMessageRenderer(text string) (*MessageRenderer, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultMessageTemplate
	}

	funcs := sprig.TxtFuncMap()
	funcs["abs"] = func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	}

	tmpl, err := template.New("alert").Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}
	return &MessageRenderer{tmpl: tmpl}, nil
}

// Render executes the template for user and items.
func (m *MessageRenderer) Render(user RegisteredUser, items []DueItem) (string, error) {
	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, MessageData{User: user, Items: items}); err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
