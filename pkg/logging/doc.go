// Package logging provides the subsystem-tagged structured logger used across
// duewatch.
//
// It is a thin layer over log/slog: every entry carries a "subsystem" attribute
// and, for errors, an "error" attribute. Output is either text or JSON.
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Scheduler", "Sweep %s started for %d users", id, n)
//	logging.Error("OAuth", err, "Token refresh failed for subject=%s", logging.TruncateID(subject))
//
// Identifiers that name a person (chat user IDs, login IDs) should be passed
// through TruncateID before logging. Token values are never logged.
package logging
