package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"duewatch/internal/app"
)

const testStateSecret = "0123456789abcdef0123456789abcdef"

// runCommand executes rootCmd with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	debug = false
	authorizeWait = false
	authorizeTimeout = 5 * time.Minute
	sweepDryRun = false
	sweepScanOnly = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// oauthConfig writes a config with OAuth enabled and a file store.
func oauthConfig(t *testing.T, registry string) string {
	t.Helper()
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "registry.yaml")
	writeFile(t, registryPath, registry)

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `
oauth:
  clientID: client-1
  stateSecret: `+testStateSecret+`
store:
  path: `+filepath.Join(dir, "creds")+`
scheduler:
  registryPath: `+registryPath+`
`)
	return configPath
}

func TestAuthorizeCommand_PrintsLink(t *testing.T) {
	configPath := oauthConfig(t, "users: []\n")

	out, err := runCommand(t, "authorize", "U1", "--config", configPath)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !strings.Contains(out, "client_id=client-1") {
		t.Errorf("Expected authorization link in output, got %q", out)
	}
}

func TestAuthorizeCommand_WaitTimesOut(t *testing.T) {
	configPath := oauthConfig(t, "users: []\n")

	_, err := runCommand(t, "authorize", "U1", "--config", configPath, "--wait", "--timeout", "50ms")

	var failed *AuthFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Expected AuthFailedError, got %v", err)
	}
	if getExitCode(err) != ExitCodeAuthFailed {
		t.Errorf("Expected exit code %d, got %d", ExitCodeAuthFailed, getExitCode(err))
	}
}

func TestAuthorizeCommand_OAuthDisabled(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "store:\n  path: "+filepath.Join(dir, "creds")+"\n")

	_, err := runCommand(t, "authorize", "U1", "--config", configPath)
	if !errors.Is(err, app.ErrOAuthDisabled) {
		t.Errorf("Expected ErrOAuthDisabled, got %v", err)
	}
}

func TestRevokeCommand_NothingStored(t *testing.T) {
	configPath := oauthConfig(t, "users: []\n")

	out, err := runCommand(t, "revoke", "U1", "--config", configPath)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if !strings.Contains(out, "Nothing stored for U1") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestStatusCommand_UnauthorizedSubject(t *testing.T) {
	configPath := oauthConfig(t, "users:\n  - subject: U1\n    recipient: C1\n")

	out, err := runCommand(t, "status", "U1", "--config", configPath)
	if getExitCode(err) != ExitCodeAuthRequired {
		t.Fatalf("Expected exit code %d, got %v", ExitCodeAuthRequired, err)
	}
	if !strings.Contains(out, "unauthorized") || !strings.Contains(out, "C1") {
		t.Errorf("Expected status row in output, got %q", out)
	}
}

func TestStatusCommand_ListsRegistry(t *testing.T) {
	configPath := oauthConfig(t, "users:\n  - subject: U1\n  - subject: U2\n    source: session\n")

	out, err := runCommand(t, "status", "--config", configPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"SUBJECT", "U1", "U2", "session"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output %q", want, out)
		}
	}
}

// librarySite serves a login form that issues a session cookie and an items
// endpoint with one book due today.
func librarySite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "s1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("ASP.NET_SessionId"); err != nil || c.Value != "s1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Title": "Digital Logic", "Over Due": "0 days", "Return Date": "2024-03-10"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSweepCommand_DryRun(t *testing.T) {
	srv := librarySite(t)
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "registry.yaml")
	writeFile(t, registryPath, "users:\n  - subject: U1\n    login: 078BEI010\n    secret: pw\n    recipient: D1\n")

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `
store:
  path: `+filepath.Join(dir, "creds")+`
scheduler:
  registryPath: `+registryPath+`
  defaultSource: session
sources:
  session:
    loginURL: `+srv.URL+`/login
    itemsURL: `+srv.URL+`/items
`)

	out, err := runCommand(t, "sweep", "--dry-run", "--config", configPath)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	for _, want := range []string{"--- to D1 ---", "Digital Logic", "notified", "1 notified"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output %q", want, out)
		}
	}
}

func TestSweepCommand_MissingRegistry(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `
oauth:
  clientID: client-1
  stateSecret: `+testStateSecret+`
store:
  path: `+filepath.Join(dir, "creds")+`
scheduler:
  registryPath: `+filepath.Join(dir, "missing.yaml")+`
`)

	if _, err := runCommand(t, "sweep", "--dry-run", "--config", configPath); err == nil {
		t.Error("Expected an error for a missing registry")
	}
}
