package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duewatch/internal/credential"
	"duewatch/internal/scheduler"
)

type resolverFunc func(ctx context.Context, subjectID string) (credential.Result, error)

func (f resolverFunc) GetUsableCredential(ctx context.Context, subjectID string) (credential.Result, error) {
	return f(ctx, subjectID)
}

func authorized(token string) resolverFunc {
	return func(_ context.Context, subjectID string) (credential.Result, error) {
		return credential.Result{
			Status: credential.StatusAuthorized,
			Record: credential.Record{SubjectID: subjectID, AccessToken: token},
		}, nil
	}
}

// classroomServer serves two courses, the first split over two pages.
func classroomServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "ACTIVE", r.URL.Query().Get("courseStates"))
		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"courses":       []map[string]string{{"id": "c1", "name": "Compilers"}},
				"nextPageToken": "p2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"courses": []map[string]string{{"id": "c2", "name": "Networks"}},
		})
	})
	mux.HandleFunc("/v1/courses/c1/courseWork", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"courseWork": []map[string]any{
				{"id": "w1", "title": "Lexer", "dueDate": map[string]int{"year": 2024, "month": 3, "day": 12}},
				{"id": "w2", "title": "Reading"},
			},
		})
	})
	mux.HandleFunc("/v1/courses/c2/courseWork", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"courseWork": []map[string]any{
				{"id": "w3", "title": "Lab 4", "dueDate": map[string]int{"year": 2024, "month": 3, "day": 9}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
}

func TestCoursework_Fetch(t *testing.T) {
	srv := classroomServer(t, "tok")
	src := NewCoursework(authorized("tok"), CourseworkConfig{BaseURL: srv.URL, Now: fixedNow})

	items, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, scheduler.DueItem{Title: "Compilers: Lexer", DueInDays: -2, DueDate: "2024-03-12"}, items[0])
	assert.Equal(t, scheduler.DueItem{Title: "Networks: Lab 4", DueInDays: 1, DueDate: "2024-03-09"}, items[1])
	assert.Equal(t, CourseworkSourceName, src.Name())
}

func TestCoursework_AuthorizationRequired(t *testing.T) {
	resolver := resolverFunc(func(context.Context, string) (credential.Result, error) {
		return credential.Result{Status: credential.StatusAuthorizationRequired, AuthURL: "https://auth.example/x"}, nil
	})
	src := NewCoursework(resolver, CourseworkConfig{BaseURL: "http://unused.invalid"})

	_, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrAuthorizationRequired)

	var authErr *AuthorizationRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "https://auth.example/x", authErr.AuthURL)
}

func TestCoursework_RetryableThenAuthorized(t *testing.T) {
	srv := classroomServer(t, "tok")
	var calls atomic.Int32
	resolver := resolverFunc(func(ctx context.Context, subjectID string) (credential.Result, error) {
		if calls.Add(1) < 3 {
			return credential.Result{Status: credential.StatusRetryable, Err: errors.New("503 from token endpoint")}, nil
		}
		return authorized("tok")(ctx, subjectID)
	})
	src := NewCoursework(resolver, CourseworkConfig{BaseURL: srv.URL, Now: fixedNow, InitialBackoff: time.Millisecond})

	items, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCoursework_RetryableExhausted(t *testing.T) {
	var calls atomic.Int32
	resolver := resolverFunc(func(context.Context, string) (credential.Result, error) {
		calls.Add(1)
		return credential.Result{Status: credential.StatusRetryable, Err: errors.New("timeout")}, nil
	})
	src := NewCoursework(resolver, CourseworkConfig{BaseURL: "http://unused.invalid", MaxTries: 2, InitialBackoff: time.Millisecond})

	_, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoursework_StorageErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	storageErr := credential.StorageError("get", "u1", errors.New("disk gone"))
	resolver := resolverFunc(func(context.Context, string) (credential.Result, error) {
		calls.Add(1)
		return credential.Result{}, storageErr
	})
	src := NewCoursework(resolver, CourseworkConfig{BaseURL: "http://unused.invalid", InitialBackoff: time.Millisecond})

	_, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	assert.True(t, credential.IsStorageUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoursework_APIRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"courses":[]}`))
	}))
	defer srv.Close()

	src := NewCoursework(authorized("tok"), CourseworkConfig{BaseURL: srv.URL, InitialBackoff: time.Millisecond})
	items, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCoursework_APIClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewCoursework(authorized("tok"), CourseworkConfig{BaseURL: srv.URL, InitialBackoff: time.Millisecond})
	_, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCoursework_RejectedTokenNeedsAuthorization(t *testing.T) {
	srv := classroomServer(t, "tok")
	src := NewCoursework(authorized("stale"), CourseworkConfig{BaseURL: srv.URL})

	_, err := src.Fetch(context.Background(), scheduler.RegisteredUser{SubjectID: "u1"})
	assert.ErrorIs(t, err, scheduler.ErrAuthorizationRequired)
}

func TestDaysBetween(t *testing.T) {
	today := civilDate(fixedNow())
	assert.Equal(t, 0, daysBetween(today, today))
	assert.Equal(t, -3, daysBetween(today.AddDate(0, 0, 3), today))
	assert.Equal(t, 2, daysBetween(today.AddDate(0, 0, -2), today))
}
