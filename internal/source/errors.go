package source

import (
	"errors"
	"fmt"

	"duewatch/internal/scheduler"
)

var (
	// ErrMissingLogin is returned when a session user has no login or secret.
	ErrMissingLogin = errors.New("user has no external login configured")
	// ErrLoginFailed is returned when the site rejects the login.
	ErrLoginFailed = errors.New("login failed")
	// ErrCredentialUnavailable is returned when a usable credential could not
	// be obtained before retries ran out.
	ErrCredentialUnavailable = errors.New("credential temporarily unavailable")
)

// AuthorizationRequiredError reports that the user must authorize before
// their data can be fetched. It matches scheduler.ErrAuthorizationRequired.
type AuthorizationRequiredError struct {
	AuthURL string
}

func (e *AuthorizationRequiredError) Error() string {
	return scheduler.ErrAuthorizationRequired.Error()
}

func (e *AuthorizationRequiredError) Is(target error) bool {
	return target == scheduler.ErrAuthorizationRequired
}

// StatusError is a non-success HTTP response from an upstream API. The body
// is not retained.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
