package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"

	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

// Log is a dry-run deliverer. With a nil writer the alert goes to the log.
type Log struct {
	mu  sync.Mutex
	out io.Writer
}

var _ scheduler.Deliverer = (*Log)(nil)

// NewLog creates a dry-run deliverer writing to out, or to the log if out
// is nil.
func NewLog(out io.Writer) *Log {
	return &Log{out: out}
}

func (l *Log) Deliver(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return ErrEmptyRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.out == nil {
		logging.Info("Delivery", "Dry run alert for %s:\n%s", logging.TruncateID(recipient), text)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.out, "--- to %s ---\n%s\n\n", recipient, text)
	return err
}
