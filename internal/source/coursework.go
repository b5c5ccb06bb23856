package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"duewatch/internal/credential"
	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

const (
	// CourseworkSourceName is the registry name of CourseworkSource.
	CourseworkSourceName = "oauth"

	DefaultClassroomBaseURL = "https://classroom.googleapis.com"
	DefaultMaxTries         = 4
	DefaultInitialBackoff   = 500 * time.Millisecond

	maxResponseBytes = 4 << 20
)

// CredentialResolver yields a usable credential for a subject.
// credential.Manager implements it.
type CredentialResolver interface {
	GetUsableCredential(ctx context.Context, subjectID string) (credential.Result, error)
}

// CourseworkConfig configures a CourseworkSource.
type CourseworkConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	// MaxTries bounds attempts for credential resolution and each API call.
	MaxTries       uint
	InitialBackoff time.Duration
	PageSize       int
	// Now and Location decide what "today" is when computing DueInDays.
	Now      func() time.Time
	Location *time.Location
}

// CourseworkSource lists assignment deadlines across a user's active courses.
type CourseworkSource struct {
	creds  CredentialResolver
	config CourseworkConfig
}

var _ scheduler.DataSource = (*CourseworkSource)(nil)

// NewCoursework creates a CourseworkSource.
func NewCoursework(creds CredentialResolver, config CourseworkConfig) *CourseworkSource {
	if config.BaseURL == "" {
		config.BaseURL = DefaultClassroomBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.MaxTries == 0 {
		config.MaxTries = DefaultMaxTries
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &CourseworkSource{creds: creds, config: config}
}

func (s *CourseworkSource) Name() string {
	return CourseworkSourceName
}

func (s *CourseworkSource) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.InitialBackoff
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.config.MaxTries),
	}
}

// Fetch resolves the user's credential, then lists coursework with a due
// date in every active course.
func (s *CourseworkSource) Fetch(ctx context.Context, user scheduler.RegisteredUser) ([]scheduler.DueItem, error) {
	record, err := s.credential(ctx, user.SubjectID)
	if err != nil {
		return nil, err
	}

	courses, err := s.listCourses(ctx, record.AccessToken)
	if err != nil {
		return nil, err
	}

	today := civilDate(s.config.Now().In(s.config.Location))
	var items []scheduler.DueItem
	for _, course := range courses {
		work, err := s.listCourseWork(ctx, record.AccessToken, course.ID)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", course.ID, err)
		}
		for _, cw := range work {
			if cw.DueDate == nil || cw.DueDate.Year == 0 {
				continue
			}
			due := cw.DueDate.time()
			items = append(items, scheduler.DueItem{
				Title:     course.Name + ": " + cw.Title,
				DueInDays: daysBetween(due, today),
				DueDate:   due.Format("2006-01-02"),
			})
		}
	}

	logging.Debug("Coursework", "Fetched %d dated items from %d courses for subject=%s",
		len(items), len(courses), logging.TruncateID(user.SubjectID))
	return items, nil
}

// credential obtains a usable record, retrying transient refresh failures.
func (s *CourseworkSource) credential(ctx context.Context, subjectID string) (credential.Record, error) {
	record, err := backoff.Retry(ctx, func() (credential.Record, error) {
		res, err := s.creds.GetUsableCredential(ctx, subjectID)
		if err != nil {
			return credential.Record{}, backoff.Permanent(err)
		}
		switch res.Status {
		case credential.StatusAuthorized:
			return res.Record, nil
		case credential.StatusAuthorizationRequired:
			return credential.Record{}, backoff.Permanent(&AuthorizationRequiredError{AuthURL: res.AuthURL})
		default:
			logging.Debug("Coursework", "Credential for subject=%s not ready, retrying", logging.TruncateID(subjectID))
			return credential.Record{}, fmt.Errorf("%w: %v", ErrCredentialUnavailable, res.Err)
		}
	}, s.retryOptions()...)
	if err != nil {
		return credential.Record{}, err
	}
	return record, nil
}

type course struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"courseState"`
}

type courseWork struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	DueDate *date  `json:"dueDate,omitempty"`
}

type date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d date) time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

func (s *CourseworkSource) listCourses(ctx context.Context, token string) ([]course, error) {
	var all []course
	err := s.paginate(ctx, token, s.config.BaseURL+"/v1/courses", url.Values{"courseStates": {"ACTIVE"}}, func(body []byte) (string, error) {
		var page struct {
			Courses       []course `json:"courses"`
			NextPageToken string   `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("failed to decode courses: %w", err)
		}
		all = append(all, page.Courses...)
		return page.NextPageToken, nil
	})
	return all, err
}

func (s *CourseworkSource) listCourseWork(ctx context.Context, token, courseID string) ([]courseWork, error) {
	var all []courseWork
	endpoint := s.config.BaseURL + "/v1/courses/" + url.PathEscape(courseID) + "/courseWork"
	err := s.paginate(ctx, token, endpoint, url.Values{"courseWorkStates": {"PUBLISHED"}}, func(body []byte) (string, error) {
		var page struct {
			CourseWork    []courseWork `json:"courseWork"`
			NextPageToken string       `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("failed to decode coursework: %w", err)
		}
		all = append(all, page.CourseWork...)
		return page.NextPageToken, nil
	})
	return all, err
}

func (s *CourseworkSource) paginate(ctx context.Context, token, endpoint string, query url.Values, handle func([]byte) (string, error)) error {
	query.Set("pageSize", fmt.Sprint(s.config.PageSize))
	for {
		body, err := s.get(ctx, token, endpoint+"?"+query.Encode())
		if err != nil {
			return err
		}
		next, err := handle(body)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		query.Set("pageToken", next)
	}
}

// get performs one authenticated GET, retrying network errors and 429/5xx
// responses with exponential backoff.
func (s *CourseworkSource) get(ctx context.Context, token, rawURL string) ([]byte, error) {
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := s.config.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(&AuthorizationRequiredError{})
		}
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
			statusErr := &StatusError{URL: stripQuery(rawURL), StatusCode: resp.StatusCode}
			if statusErr.retryable() {
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	}, s.retryOptions()...)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns today minus due in whole days: negative while the
// item is still ahead, zero on the due date, positive once overdue.
func daysBetween(due, today time.Time) int {
	return int(today.Sub(due).Hours() / 24)
}
