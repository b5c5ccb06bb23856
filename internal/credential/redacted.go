package credential

import (
	"fmt"
	"log/slog"
	"time"
)

// Redacted formats a token as "[REDACTED]" in Record.String.
type Redacted string

func (r Redacted) String() string { return "[REDACTED]" }

// String renders the record without token values.
func (r Record) String() string {
	expiry := "none"
	if !r.Expiry.IsZero() {
		expiry = r.Expiry.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("Record{subject=%s access=%s refresh=%s expiry=%s scopes=%v}",
		r.SubjectID, Redacted(r.AccessToken), redactedOrNone(r.RefreshToken), expiry, r.Scopes)
}

// GoString keeps %#v from printing token values.
func (r Record) GoString() string {
	return r.String()
}

// LogValue implements slog.LogValuer.
func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subject", r.SubjectID),
		slog.Bool("has_refresh_token", r.CanRefresh()),
		slog.Time("expiry", r.Expiry),
	)
}

func redactedOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return Redacted(s).String()
}
