package mock

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func postForm(t *testing.T, endpoint string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestOAuthServer_CodeExchangeAndRefresh(t *testing.T) {
	server := NewOAuthServer(OAuthServerConfig{ClientID: "cid"})
	defer server.Close()

	authURL := server.AuthURL() + "?client_id=cid&access_type=offline&prompt=consent&state=s1&redirect_uri=http://localhost/cb"
	code, state, err := server.Approve(authURL)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if state != "s1" {
		t.Errorf("Expected state s1, got %q", state)
	}

	resp, body := postForm(t, server.TokenURL(), url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"client_id":    {"cid"},
		"redirect_uri": {"http://localhost/cb"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, body)
	}
	refresh, _ := body["refresh_token"].(string)
	if refresh == "" {
		t.Fatal("Expected a refresh token")
	}

	// Codes are single use.
	resp, body = postForm(t, server.TokenURL(), url.Values{
		"grant_type": {"authorization_code"}, "code": {code}, "client_id": {"cid"},
	})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "invalid_grant" {
		t.Errorf("Expected invalid_grant on code reuse, got %d %v", resp.StatusCode, body)
	}

	resp, _ = postForm(t, server.TokenURL(), url.Values{
		"grant_type": {"refresh_token"}, "refresh_token": {refresh}, "client_id": {"cid"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected refresh to succeed, got %d", resp.StatusCode)
	}
	if server.RefreshRequests() != 1 {
		t.Errorf("Expected 1 refresh request, got %d", server.RefreshRequests())
	}
}

func TestOAuthServer_ApproveRequiresOfflineConsent(t *testing.T) {
	server := NewOAuthServer(OAuthServerConfig{ClientID: "cid"})
	defer server.Close()

	if _, _, err := server.Approve(server.AuthURL() + "?client_id=cid&state=s"); err == nil {
		t.Error("Expected approval without offline access to fail")
	}
}

func TestOAuthServer_FailNextAndRevoke(t *testing.T) {
	server := NewOAuthServer(OAuthServerConfig{ClientID: "cid"})
	defer server.Close()
	server.AddRefreshToken("r1")
	server.FailNext(OAuthFailure{Status: http.StatusServiceUnavailable, ErrorCode: "temporarily_unavailable"})

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"r1"}, "client_id": {"cid"}}
	resp, _ := postForm(t, server.TokenURL(), form)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected scripted 503, got %d", resp.StatusCode)
	}
	resp, _ = postForm(t, server.TokenURL(), form)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected success after scripted failure, got %d", resp.StatusCode)
	}

	postForm(t, server.RevokeURL(), url.Values{"token": {"r1"}})
	if got := server.Revoked(); len(got) != 1 || got[0] != "r1" {
		t.Errorf("Expected r1 to be revoked, got %v", got)
	}
	resp, body := postForm(t, server.TokenURL(), form)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "invalid_grant" {
		t.Errorf("Expected invalid_grant after revocation, got %d %v", resp.StatusCode, body)
	}
}
