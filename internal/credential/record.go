package credential

import (
	"errors"
	"strings"
	"time"
)

// Record is the credential persisted for one subject. Exactly one record
// exists per subject; it is replaced wholesale on every refresh.
type Record struct {
	// SubjectID is the stable external identity the record belongs to.
	SubjectID string `json:"subject_id"`

	// AccessToken is the bearer token presented to the provider API.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to mint new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// Expiry is when the access token expires. The zero value means the token
	// has no expiry semantics.
	Expiry time.Time `json:"expiry,omitempty"`

	// Scopes is the granted scope set.
	Scopes []string `json:"scopes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrEmptySubject indicates a subject ID is required.
	ErrEmptySubject = errors.New("subject id is required")
	// ErrEmptyAccessToken indicates a record without an access token.
	ErrEmptyAccessToken = errors.New("access token is required")
)

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	if strings.TrimSpace(r.SubjectID) == "" {
		return ErrEmptySubject
	}
	if r.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

// IsExpired reports whether the access token is expired at now, or will
// expire within margin.
func (r Record) IsExpired(now time.Time, margin time.Duration) bool {
	if r.Expiry.IsZero() {
		return false
	}
	return !now.Add(margin).Before(r.Expiry)
}

// CanRefresh reports whether the record carries a refresh token.
func (r Record) CanRefresh() bool {
	return r.RefreshToken != ""
}

// NormalizeScopes trims, de-duplicates and drops empty scopes while
// preserving order.
func NormalizeScopes(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, value := range in {
		scope := strings.TrimSpace(value)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// PendingAuthorization tracks an authorization flow that was started but
// whose callback has not arrived yet.
type PendingAuthorization struct {
	SubjectID string
	// State is the opaque, URL-safe state parameter embedding SubjectID.
	State     string
	Nonce     string
	AuthURL   string
	CreatedAt time.Time
}
