package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRenderer_Default(t *testing.T) {
	r, err := NewMessageRenderer("")
	require.NoError(t, err)

	text, err := r.Render(RegisteredUser{SubjectID: "u1"}, []DueItem{
		{Title: "Operating Systems", DueInDays: -2, DueDate: "2024-03-12"},
		{Title: "Compilers", DueInDays: -1},
	})
	require.NoError(t, err)

	assert.Contains(t, text, "Due Date Alert")
	assert.Contains(t, text, "*Due Date Alert*")
	assert.Contains(t, text, "*Operating Systems* is due in *2 days* (Due Date: 2024-03-12).")
	assert.Contains(t, text, "*Compilers* is due in *1 day*.")
	assert.Contains(t, text, "renew them soon")
	assert.NotContains(t, text, "**", "Slack mrkdwn bolds with single asterisks")
}

func TestMessageRenderer_SingleItem(t *testing.T) {
	r, err := NewMessageRenderer("")
	require.NoError(t, err)

	text, err := r.Render(RegisteredUser{}, []DueItem{{Title: "Algorithms", DueInDays: 0, DueDate: "today"}})
	require.NoError(t, err)
	assert.Contains(t, text, "*0 days*")
	assert.NotContains(t, text, "**")
	assert.Contains(t, text, "renew it soon")
}

func TestMessageRenderer_CustomTemplateWithSprig(t *testing.T) {
	r, err := NewMessageRenderer(`{{ len .Items }} items for {{ .User.Recipient | upper }}: {{ range .Items }}{{ .Title | lower }} {{ end }}`)
	require.NoError(t, err)

	text, err := r.Render(RegisteredUser{Recipient: "chan"}, []DueItem{{Title: "ABC"}, {Title: "DEF"}})
	require.NoError(t, err)
	assert.Equal(t, "2 items for CHAN: abc def", text)
}

func TestMessageRenderer_InvalidTemplate(t *testing.T) {
	_, err := NewMessageRenderer("{{ .Items")
	assert.Error(t, err)
}

func TestMessageRenderer_ExecutionError(t *testing.T) {
	r, err := NewMessageRenderer("{{ .Missing }}")
	require.NoError(t, err)
	_, err = r.Render(RegisteredUser{}, nil)
	assert.Error(t, err)
}
