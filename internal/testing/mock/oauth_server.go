package mock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuthServerConfig configures the fake authorization server.
type OAuthServerConfig struct {
	ClientID     string
	ClientSecret string

	// Scope is returned in token responses. Empty omits the field.
	Scope string

	// TokenLifetime is the expires_in of issued access tokens.
	TokenLifetime time.Duration

	// RotateRefreshTokens issues a new refresh token on every refresh.
	RotateRefreshTokens bool
}

// OAuthFailure scripts the next token endpoint response.
type OAuthFailure struct {
	Status    int
	ErrorCode string
}

// OAuthServer is a minimal authorization server backed by httptest.
type OAuthServer struct {
	config OAuthServerConfig
	server *httptest.Server

	mu            sync.Mutex
	codes         map[string]authCodeEntry
	refreshTokens map[string]bool
	revoked       []string
	failures      []OAuthFailure

	tokenRequests   int
	refreshRequests int
}

type authCodeEntry struct {
	RedirectURI   string
	State         string
	CodeChallenge string
}

// TokenResponse is the OAuth token response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// NewOAuthServer starts a fake authorization server. Call Close when done.
func NewOAuthServer(config OAuthServerConfig) *OAuthServer {
	if config.ClientID == "" {
		config.ClientID = "test-client"
	}
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}

	s := &OAuthServer{
		config:        config,
		codes:         make(map[string]authCodeEntry),
		refreshTokens: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/revoke", s.handleRevoke)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *OAuthServer) Close() {
	s.server.Close()
}

func (s *OAuthServer) URL() string       { return s.server.URL }
func (s *OAuthServer) AuthURL() string   { return s.server.URL + "/authorize" }
func (s *OAuthServer) TokenURL() string  { return s.server.URL + "/token" }
func (s *OAuthServer) RevokeURL() string { return s.server.URL + "/revoke" }

// Approve simulates the user consenting at authURL and returns the code the
// provider would pass to the redirect URI.
func (s *OAuthServer) Approve(authURL string) (code, state string, err error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	if q.Get("client_id") != s.config.ClientID {
		return "", "", fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		return "", "", fmt.Errorf("offline access with consent prompt was not requested")
	}

	code = generateOpaqueToken()
	s.mu.Lock()
	s.codes[code] = authCodeEntry{
		RedirectURI:   q.Get("redirect_uri"),
		State:         q.Get("state"),
		CodeChallenge: q.Get("code_challenge"),
	}
	s.mu.Unlock()
	return code, q.Get("state"), nil
}

// AddRefreshToken makes refreshToken acceptable to the token endpoint.
func (s *OAuthServer) AddRefreshToken(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[refreshToken] = true
}

// FailNext queues failures returned by the next token requests, in order.
func (s *OAuthServer) FailNext(failures ...OAuthFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failures...)
}

// TokenRequests returns the number of requests to the token endpoint.
func (s *OAuthServer) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// RefreshRequests returns the number of refresh_token grants received.
func (s *OAuthServer) RefreshRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshRequests
}

// Revoked returns the tokens posted to the revocation endpoint.
func (s *OAuthServer) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

func (s *OAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	code, state, err := s.Approve(r.URL.String())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	redirect := r.URL.Query().Get("redirect_uri")
	http.Redirect(w, r, redirect+"?code="+url.QueryEscape(code)+"&state="+url.QueryEscape(state), http.StatusFound)
}

func (s *OAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.tokenRequests++
	if r.FormValue("grant_type") == "refresh_token" {
		s.refreshRequests++
	}
	var failure *OAuthFailure
	if len(s.failures) > 0 {
		f := s.failures[0]
		s.failures = s.failures[1:]
		failure = &f
	}
	s.mu.Unlock()

	if failure != nil {
		writeOAuthError(w, failure.Status, failure.ErrorCode, "simulated failure")
		return
	}

	if r.FormValue("client_id") != s.config.ClientID {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}
	if s.config.ClientSecret != "" && r.FormValue("client_secret") != s.config.ClientSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "bad client secret")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.handleAuthCodeExchange(w, r)
	case "refresh_token":
		s.handleRefreshToken(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
	}
}

func (s *OAuthServer) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	s.mu.Lock()
	entry, exists := s.codes[code]
	delete(s.codes, code)
	s.mu.Unlock()

	if !exists {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code not found or already used")
		return
	}
	if entry.RedirectURI != "" && r.FormValue("redirect_uri") != entry.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if entry.CodeChallenge != "" && !verifyPKCE(entry.CodeChallenge, r.FormValue("code_verifier")) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier verification failed")
		return
	}

	refresh := generateOpaqueToken()
	s.AddRefreshToken(refresh)
	s.writeToken(w, refresh)
}

func (s *OAuthServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	refresh := r.FormValue("refresh_token")

	s.mu.Lock()
	valid := s.refreshTokens[refresh]
	if valid && s.config.RotateRefreshTokens {
		delete(s.refreshTokens, refresh)
	}
	s.mu.Unlock()

	if !valid {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token not found")
		return
	}

	if !s.config.RotateRefreshTokens {
		s.writeToken(w, "")
		return
	}
	next := generateOpaqueToken()
	s.AddRefreshToken(next)
	s.writeToken(w, next)
}

func (s *OAuthServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	token := r.FormValue("token")

	s.mu.Lock()
	s.revoked = append(s.revoked, token)
	delete(s.refreshTokens, token)
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *OAuthServer) writeToken(w http.ResponseWriter, refreshToken string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  generateOpaqueToken(),
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.TokenLifetime.Seconds()),
		Scope:        s.config.Scope,
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	hash := sha256.Sum256([]byte(verifier))
	return strings.TrimRight(base64.RawURLEncoding.EncodeToString(hash[:]), "=") == challenge
}

func generateOpaqueToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
