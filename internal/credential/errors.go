package credential

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no record exists for a subject.
var ErrNotFound = errors.New("credential not found")

// Kind classifies credential lifecycle failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindExchangeFailed means the provider rejected an authorization code.
	KindExchangeFailed
	// KindRefreshRejected means the refresh token itself is invalid or revoked.
	KindRefreshRejected
	// KindTransient is a network or provider hiccup; retry later.
	KindTransient
	// KindStorageUnavailable is a durable store failure.
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindExchangeFailed:
		return "exchange_failed"
	case KindRefreshRejected:
		return "refresh_rejected"
	case KindTransient:
		return "transient"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// Error is the typed error returned at every external boundary of the
// credential lifecycle.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation.
func NewError(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// StorageError wraps a store failure as KindStorageUnavailable. ErrNotFound
// passes through unchanged.
func StorageError(op, subject string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Kind == KindStorageUnavailable {
		return err
	}
	return NewError(KindStorageUnavailable, op, subject, err)
}

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsStorageUnavailable reports whether err is a durable store failure.
func IsStorageUnavailable(err error) bool {
	return IsKind(err, KindStorageUnavailable)
}

// errorf is a small helper for kind-tagged errors with a formatted cause.
func errorf(kind Kind, op, subject, format string, args ...any) *Error {
	return NewError(kind, op, subject, fmt.Errorf(format, args...))
}
