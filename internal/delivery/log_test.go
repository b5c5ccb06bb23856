package delivery

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_DeliverToWriter(t *testing.T) {
	var buf bytes.Buffer
	d := NewLog(&buf)

	require.NoError(t, d.Deliver(context.Background(), "U1", "due soon"))
	assert.Contains(t, buf.String(), "--- to U1 ---")
	assert.Contains(t, buf.String(), "due soon")
}

func TestLog_DeliverToLogger(t *testing.T) {
	assert.NoError(t, NewLog(nil).Deliver(context.Background(), "U1", "due soon"))
}

func TestLog_Errors(t *testing.T) {
	d := NewLog(nil)
	assert.ErrorIs(t, d.Deliver(context.Background(), "", "x"), ErrEmptyRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Deliver(ctx, "U1", "x"), context.Canceled)
}
