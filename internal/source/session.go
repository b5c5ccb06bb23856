package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

const (
	// SessionSourceName is the registry name of SessionSource.
	SessionSourceName = "session"

	DefaultSessionCookie = "ASP.NET_SessionId"
)

// SessionConfig configures a SessionSource.
type SessionConfig struct {
	// LoginURL receives a form POST with the user's login and secret.
	LoginURL string
	// ItemsURL returns the borrowed items as a JSON array of objects.
	ItemsURL string
	// CookieName is the session cookie that marks a successful login.
	CookieName string
	// UsernameField and PasswordField name the login form fields.
	UsernameField string
	PasswordField string
	Timeout       time.Duration
	// Transport is used for both requests; nil selects http.DefaultTransport.
	Transport http.RoundTripper
}

// SessionSource signs in with per-user credentials and reads due items from
// a session-protected endpoint. Each Fetch uses a fresh cookie jar so users
// never share a session.
type SessionSource struct {
	config SessionConfig
}

var _ scheduler.DataSource = (*SessionSource)(nil)

// NewSession creates a SessionSource.
func NewSession(config SessionConfig) (*SessionSource, error) {
	if config.LoginURL == "" || config.ItemsURL == "" {
		return nil, fmt.Errorf("session source: login and items URLs are required")
	}
	if config.CookieName == "" {
		config.CookieName = DefaultSessionCookie
	}
	if config.UsernameField == "" {
		config.UsernameField = "Username"
	}
	if config.PasswordField == "" {
		config.PasswordField = "Password"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &SessionSource{config: config}, nil
}

func (s *SessionSource) Name() string {
	return SessionSourceName
}

// Fetch logs in as user and returns every item whose "Over Due" field
// parses. Rows that do not parse are logged and skipped.
func (s *SessionSource) Fetch(ctx context.Context, user scheduler.RegisteredUser) ([]scheduler.DueItem, error) {
	if user.ExternalLoginID == "" || user.ExternalSecret == "" {
		return nil, ErrMissingLogin
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Jar: jar, Timeout: s.config.Timeout, Transport: s.config.Transport}

	if err := s.login(ctx, client, user); err != nil {
		return nil, err
	}

	rows, err := s.fetchRows(ctx, client)
	if err != nil {
		return nil, err
	}

	subject := logging.TruncateID(user.SubjectID)
	items := make([]scheduler.DueItem, 0, len(rows))
	for _, row := range rows {
		days, err := parseOverDue(row["Over Due"])
		if err != nil {
			logging.Warn("Session", "Skipping row for subject=%s: %v", subject, err)
			continue
		}
		items = append(items, scheduler.DueItem{
			Title:     row["Title"],
			DueInDays: days,
			DueDate:   row["Return Date"],
		})
	}
	logging.Debug("Session", "Fetched %d items for subject=%s", len(items), subject)
	return items, nil
}

func (s *SessionSource) login(ctx context.Context, client *http.Client, user scheduler.RegisteredUser) error {
	form := url.Values{
		s.config.UsernameField: {user.ExternalLoginID},
		s.config.PasswordField: {user.ExternalSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	itemsURL, err := url.Parse(s.config.ItemsURL)
	if err != nil {
		return err
	}
	for _, c := range client.Jar.Cookies(itemsURL) {
		if c.Name == s.config.CookieName && c.Value != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: no %s cookie issued", ErrLoginFailed, s.config.CookieName)
}

func (s *SessionSource) fetchRows(ctx context.Context, client *http.Client) ([]map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.ItemsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("items request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &StatusError{URL: s.config.ItemsURL, StatusCode: resp.StatusCode}
	}

	var rows []map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return rows, nil
}

// parseOverDue reads the leading signed integer of values like "-2 days".
func parseOverDue(value string) (int, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing Over Due value")
	}
	days, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid Over Due value %q", value)
	}
	return days, nil
}
