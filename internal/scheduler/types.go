package scheduler

import (
	"context"
	"errors"
)

// Alert window bounds for DueItem.DueInDays, inclusive.
const (
	AlertWindowMin = -3
	AlertWindowMax = 0
)

// RegisteredUser is one account the scheduler watches.
type RegisteredUser struct {
	// SubjectID is the stable chat identity, also the credential subject.
	SubjectID string
	// ExternalLoginID and ExternalSecret are login credentials for sources
	// that sign in on the user's behalf.
	ExternalLoginID string
	ExternalSecret  string
	// Recipient is the delivery address; defaults to SubjectID.
	Recipient string
	// Source names the DataSource strategy used for this user.
	Source string

	// NotifiedThisPeriod is owned by the scheduler. It is set once the user
	// has been alerted in the current period and cleared by EndPeriod.
	NotifiedThisPeriod bool
}

// DueItem is one deadline reported by a data source. DueInDays counts days
// past the deadline: today minus the due date. It is 0 on the due date,
// negative while the deadline is still ahead and positive once overdue, so
// the alert window -3..0 covers the three days before the deadline and the
// deadline itself. Every DataSource must use this sign.
type DueItem struct {
	Title     string
	DueInDays int
	DueDate   string
}

// ShouldAlert reports whether item falls inside the alert window.
func ShouldAlert(item DueItem) bool {
	return item.DueInDays >= AlertWindowMin && item.DueInDays <= AlertWindowMax
}

// MatchingItems returns the items inside the alert window, in input order.
func MatchingItems(items []DueItem) []DueItem {
	var out []DueItem
	for _, item := range items {
		if ShouldAlert(item) {
			out = append(out, item)
		}
	}
	return out
}

// DataSource fetches a user's due items. Implementations must honour ctx.
type DataSource interface {
	Name() string
	Fetch(ctx context.Context, user RegisteredUser) ([]DueItem, error)
}

// Deliverer sends a rendered alert to a recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

var (
	// ErrAuthorizationRequired is returned by sources when the user must
	// authorize before data can be fetched.
	ErrAuthorizationRequired = errors.New("authorization required")
	// ErrUnknownSource is returned when a user names a source that is not
	// registered with the scheduler.
	ErrUnknownSource = errors.New("unknown data source")
)
