package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"duewatch/internal/credential"
)

type fakeCompleter struct {
	subject string
	err     error
	calls   int
	code    string
	state   string
}

func (f *fakeCompleter) CompleteCallback(_ context.Context, code, state string) (string, error) {
	f.calls++
	f.code, f.state = code, state
	return f.subject, f.err
}

func TestHandler_HandleCallback_MissingParams(t *testing.T) {
	completer := &fakeCompleter{}
	handler := NewHandler(completer)

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing code", query: "state=some-state"},
		{name: "missing state", query: "code=some-code"},
		{name: "both missing", query: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/oauth/callback?"+tc.query, nil)
			rr := httptest.NewRecorder()

			handler.HandleCallback(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), "missing required parameters") {
				t.Errorf("Expected body to mention missing parameters, got %q", rr.Body.String())
			}
		})
	}

	if completer.calls != 0 {
		t.Errorf("Expected completer not to be called, got %d calls", completer.calls)
	}
}

func TestHandler_HandleCallback_ProviderError(t *testing.T) {
	handler := NewHandler(&fakeCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&error_description=<script>secret</script>", nil)
	rr := httptest.NewRecorder()
	handler.HandleCallback(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "secret") {
		t.Error("Provider error description must not be rendered")
	}
	if !strings.Contains(body, "denied or failed") {
		t.Errorf("Expected generic failure text, got %q", body)
	}
}

func TestHandler_HandleCallback_Success(t *testing.T) {
	completer := &fakeCompleter{subject: "alice"}
	handler := NewHandler(completer)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=xyz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if completer.code != "abc" || completer.state != "xyz" {
		t.Errorf("Expected code/state to be forwarded, got %q/%q", completer.code, completer.state)
	}
	if !strings.Contains(rr.Body.String(), "Authorization Successful") {
		t.Error("Expected success page")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected security headers to be set")
	}
}

func TestHandler_HandleCallback_CompletionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantInBody string
	}{
		{
			name:       "exchange failed",
			err:        credential.NewError(credential.KindExchangeFailed, "exchange", "alice", errors.New("bad code")),
			wantStatus: http.StatusBadRequest,
			wantInBody: "authorize again",
		},
		{
			name:       "storage unavailable",
			err:        credential.StorageError("put", "alice", errors.New("disk full")),
			wantStatus: http.StatusServiceUnavailable,
			wantInBody: "try again later",
		},
		{
			name:       "transient",
			err:        credential.NewError(credential.KindTransient, "exchange", "alice", errors.New("timeout")),
			wantStatus: http.StatusServiceUnavailable,
			wantInBody: "try again later",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(&fakeCompleter{subject: "alice", err: tc.err})
			req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=xyz", nil)
			rr := httptest.NewRecorder()
			handler.HandleCallback(rr, req)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.wantInBody) {
				t.Errorf("Expected body to contain %q, got %q", tc.wantInBody, rr.Body.String())
			}
			if strings.Contains(rr.Body.String(), "disk full") {
				t.Error("Internal error detail must not be rendered")
			}
		})
	}
}

func TestHandler_RejectsNonGet(t *testing.T) {
	handler := NewHandler(&fakeCompleter{})
	req := httptest.NewRequest(http.MethodPost, "/oauth/callback?code=a&state=b", nil)
	rr := httptest.NewRecorder()
	handler.HandleCallback(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}
