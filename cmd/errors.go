package cmd

import "fmt"

// AuthRequiredError is returned when a subject has no usable credential.
type AuthRequiredError struct {
	Subject string
	AuthURL string
}

func (e *AuthRequiredError) Error() string {
	if e.AuthURL != "" {
		return fmt.Sprintf("authorization required for %s: %s", e.Subject, e.AuthURL)
	}
	return fmt.Sprintf("authorization required for %s", e.Subject)
}

// AuthFailedError is returned when an authorization flow does not complete.
type AuthFailedError struct {
	Subject string
	Reason  string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authorization failed for %s: %s", e.Subject, e.Reason)
}
