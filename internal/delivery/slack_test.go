package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postedMessage struct {
	Token   string
	Channel string
	Text    string
}

// fakeSlack answers chat.postMessage. Channels listed in fail get the error
// response Slack returns for them.
func fakeSlack(t *testing.T, fail map[string]string) (*httptest.Server, func() []postedMessage) {
	t.Helper()
	var mu sync.Mutex
	var posted []postedMessage

	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		token := r.PostForm.Get("token")
		if auth := r.Header.Get("Authorization"); auth != "" {
			token = auth[len("Bearer "):]
		}
		channel := r.PostForm.Get("channel")

		w.Header().Set("Content-Type", "application/json")
		if code, ok := fail[channel]; ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": code})
			return
		}

		mu.Lock()
		posted = append(posted, postedMessage{Token: token, Channel: channel, Text: r.PostForm.Get("text")})
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": channel, "ts": "1700000000.000100"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []postedMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]postedMessage(nil), posted...)
	}
}

func TestSlack_Deliver(t *testing.T) {
	srv, posted := fakeSlack(t, nil)
	d, err := NewSlack(SlackConfig{Token: "xoxb-test", APIURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), "U024BE7LH", "📚 Due Date Alert"))

	msgs := posted()
	require.Len(t, msgs, 1)
	assert.Equal(t, "xoxb-test", msgs[0].Token)
	assert.Equal(t, "U024BE7LH", msgs[0].Channel)
	assert.Equal(t, "📚 Due Date Alert", msgs[0].Text)
}

func TestSlack_DeliverError(t *testing.T) {
	srv, posted := fakeSlack(t, map[string]string{"U_GONE": "user_not_found"})
	d, err := NewSlack(SlackConfig{Token: "xoxb-test", APIURL: srv.URL + "/"})
	require.NoError(t, err)

	err = d.Deliver(context.Background(), "U_GONE", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_not_found")
	assert.Empty(t, posted())
}

func TestSlack_Validation(t *testing.T) {
	_, err := NewSlack(SlackConfig{})
	assert.Error(t, err)

	d, err := NewSlack(SlackConfig{Token: "xoxb-test", APIURL: "http://127.0.0.1:1/"})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Deliver(context.Background(), "", "x"), ErrEmptyRecipient)
}
