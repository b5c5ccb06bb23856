package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"duewatch/pkg/logging"
)

// cronLogger routes robfig/cron's key/value logging through pkg/logging.
type cronLogger struct{}

var _ cron.Logger = cronLogger{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("Cron", "%s%s", msg, formatKV(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error("Cron", err, "%s%s", msg, formatKV(keysAndValues))
}

func formatKV(keysAndValues []interface{}) string {
	if len(keysAndValues) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&b, "%v", keysAndValues[i])
		}
	}
	return b.String()
}
