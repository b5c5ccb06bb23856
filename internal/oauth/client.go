package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"duewatch/internal/credential"
	"duewatch/pkg/logging"
)

// DefaultTimeout bounds every request to the provider.
const DefaultTimeout = 30 * time.Second

// Config describes the OAuth application registered with the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	// RevokeURL is optional; without it Revoke is a no-op.
	RevokeURL   string
	RedirectURL string
	Scopes      []string

	// StateSecret signs state parameters. It must be shared by every process
	// that issues URLs or serves the callback.
	StateSecret []byte
	StateTTL    time.Duration

	// PKCE adds an S256 code challenge to the authorization request.
	PKCE bool

	Timeout time.Duration
}

// Client talks to the OAuth provider. It implements credential.Provider.
type Client struct {
	cfg        oauth2.Config
	revokeURL  string
	pkce       bool
	codec      *StateCodec
	httpClient *http.Client
	now        func() time.Time
}

// NewClient validates cfg and creates a client. now may be nil.
func NewClient(cfg Config, now func() time.Time) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("oauth client id is required")
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("oauth auth and token urls are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("oauth redirect url is required")
	}
	if now == nil {
		now = time.Now
	}
	codec, err := NewStateCodec(cfg.StateSecret, cfg.StateTTL, now)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      credential.NormalizeScopes(cfg.Scopes),
		},
		revokeURL:  cfg.RevokeURL,
		pkce:       cfg.PKCE,
		codec:      codec,
		httpClient: &http.Client{Timeout: timeout},
		now:        now,
	}, nil
}

// RedirectURL returns the callback URL registered with the provider.
func (c *Client) RedirectURL() string {
	return c.cfg.RedirectURL
}

// CallbackPath returns the path component of the redirect URL.
func (c *Client) CallbackPath() string {
	u, err := url.Parse(c.cfg.RedirectURL)
	if err != nil || u.Path == "" {
		return "/oauth/callback"
	}
	return u.Path
}

// BuildAuthorizationURL starts a flow for subjectID. Offline access and the
// consent prompt are always requested so the provider issues a refresh token.
func (c *Client) BuildAuthorizationURL(subjectID string) (credential.PendingAuthorization, error) {
	state, nonce, err := c.codec.Encode(subjectID)
	if err != nil {
		return credential.PendingAuthorization{}, fmt.Errorf("failed to generate state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	if c.pkce {
		opts = append(opts, oauth2.S256ChallengeOption(c.codec.Verifier(nonce)))
	}

	logging.Debug("OAuth", "Generated auth URL for subject=%s", logging.TruncateID(subjectID))

	return credential.PendingAuthorization{
		SubjectID: subjectID,
		State:     state,
		Nonce:     nonce,
		AuthURL:   c.cfg.AuthCodeURL(state, opts...),
		CreatedAt: c.now(),
	}, nil
}

// DecodeState verifies state and returns the subject it was issued for.
func (c *Client) DecodeState(state string) (string, error) {
	p, err := c.codec.Decode(state)
	if err != nil {
		return "", err
	}
	return p.Subject, nil
}

// ExchangeCode trades an authorization code for a credential record.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (credential.Record, error) {
	p, err := c.codec.Decode(state)
	if err != nil {
		return credential.Record{}, credential.NewError(credential.KindExchangeFailed, "exchange", "", err)
	}
	if code == "" {
		return credential.Record{}, credential.NewError(credential.KindExchangeFailed, "exchange", p.Subject,
			errors.New("authorization code is empty"))
	}

	var opts []oauth2.AuthCodeOption
	if c.pkce {
		opts = append(opts, oauth2.VerifierOption(c.codec.Verifier(p.Nonce)))
	}

	start := c.now()
	tok, err := c.cfg.Exchange(c.withClient(ctx), code, opts...)
	if err != nil {
		return credential.Record{}, classifyExchangeError(p.Subject, err)
	}

	logging.Debug("OAuth", "Exchanged code for subject=%s in %v (refresh token: %t)",
		logging.TruncateID(p.Subject), c.now().Sub(start), tok.RefreshToken != "")

	return c.toRecord(p.Subject, tok, nil), nil
}

// Refresh mints a new access token from record's refresh token. The old
// refresh token is kept when the provider does not rotate it.
func (c *Client) Refresh(ctx context.Context, record credential.Record) (credential.Record, error) {
	if !record.CanRefresh() {
		return credential.Record{}, credential.NewError(credential.KindRefreshRejected, "refresh", record.SubjectID,
			errors.New("no refresh token available"))
	}

	// An empty access token forces the token source to refresh.
	src := c.cfg.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: record.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return credential.Record{}, classifyRefreshError(record.SubjectID, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = record.RefreshToken
	}

	return c.toRecord(record.SubjectID, tok, record.Scopes), nil
}

// Revoke asks the provider to invalidate the record's tokens. It is best
// effort and a no-op when no revocation endpoint is configured.
func (c *Client) Revoke(ctx context.Context, record credential.Record) error {
	if c.revokeURL == "" {
		return nil
	}
	token := record.RefreshToken
	if token == "" {
		token = record.AccessToken
	}
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("revoke failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) toRecord(subject string, tok *oauth2.Token, fallbackScopes []string) credential.Record {
	now := c.now().UTC()
	scopes := grantedScopes(tok)
	if len(scopes) == 0 {
		scopes = fallbackScopes
	}
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}
	return credential.Record{
		SubjectID:    subject,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
		Scopes:       credential.NormalizeScopes(scopes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// grantedScopes reads the space-separated "scope" field of a token response.
func grantedScopes(tok *oauth2.Token) []string {
	raw, _ := tok.Extra("scope").(string)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

func classifyExchangeError(subject string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
		logging.Debug("OAuth", "Token exchange rejected: status=%d error=%s", re.Response.StatusCode, re.ErrorCode)
		return credential.NewError(credential.KindExchangeFailed, "exchange", subject,
			fmt.Errorf("provider rejected authorization code (status %d)", re.Response.StatusCode))
	}
	return credential.NewError(credential.KindTransient, "exchange", subject, sanitize(err))
}

func classifyRefreshError(subject string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		logging.Debug("OAuth", "Token refresh failed: status=%d error=%s", status, re.ErrorCode)
		switch {
		case re.ErrorCode == "invalid_grant":
			return credential.NewError(credential.KindRefreshRejected, "refresh", subject, errors.New("refresh token rejected: invalid_grant"))
		case status == http.StatusTooManyRequests || status >= 500:
			return credential.NewError(credential.KindTransient, "refresh", subject, fmt.Errorf("provider returned status %d", status))
		case status >= 400:
			return credential.NewError(credential.KindRefreshRejected, "refresh", subject, fmt.Errorf("refresh token rejected (status %d)", status))
		}
	}
	return credential.NewError(credential.KindTransient, "refresh", subject, sanitize(err))
}

// sanitize keeps network error detail but never a provider response body.
func sanitize(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return fmt.Errorf("provider returned status %d", status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("provider request timed out: %w", context.DeadlineExceeded)
	}
	return err
}

var _ credential.Provider = (*Client)(nil)
