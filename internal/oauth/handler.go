package oauth

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"duewatch/internal/credential"
	"duewatch/pkg/logging"
)

// CallbackCompleter finishes an authorization flow from callback parameters.
// It is implemented by credential.Manager.
type CallbackCompleter interface {
	CompleteCallback(ctx context.Context, code, state string) (string, error)
}

// Handler serves the OAuth redirect endpoint.
type Handler struct {
	completer CallbackCompleter
}

// NewHandler creates a callback handler.
func NewHandler(completer CallbackCompleter) *Handler {
	return &Handler{completer: completer}
}

// HandleCallback is called by the browser after the user consents at the
// provider.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if errorParam := query.Get("error"); errorParam != "" {
		// The description comes from the provider and is not shown to users.
		logging.Warn("OAuth", "OAuth callback received error: %s", errorParam)
		h.renderErrorPage(w, http.StatusBadRequest, "Authorization was denied or failed. Please try again.")
		return
	}

	if code == "" || state == "" {
		logging.Warn("OAuth", "OAuth callback missing code or state parameter")
		h.renderErrorPage(w, http.StatusBadRequest, "Invalid callback: missing required parameters")
		return
	}

	subject, err := h.completer.CompleteCallback(r.Context(), code, state)
	if err != nil {
		logging.Error("OAuth", err, "Failed to complete authorization for subject=%s", logging.TruncateID(subject))
		status := http.StatusBadRequest
		if credential.IsStorageUnavailable(err) || credential.IsKind(err, credential.KindTransient) {
			status = http.StatusServiceUnavailable
		}
		h.renderErrorPage(w, status, credential.UserMessage(err))
		return
	}

	logging.Info("OAuth", "Authorization callback completed for subject=%s", logging.TruncateID(subject))
	h.renderSuccessPage(w)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleCallback(w, r)
}

// setSecurityHeaders sets recommended security headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s - duewatch</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f4f5f7;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            margin: 0;
        }
        .container {
            text-align: center;
            padding: 2.5rem;
            background: #fff;
            border-radius: 12px;
            max-width: 480px;
            margin: 1rem;
        }
        h1 { font-size: 1.5rem; color: %s; }
        p { color: #555; line-height: 1.6; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
        <p>%s</p>
    </div>
</body>
</html>`

func (h *Handler) renderSuccessPage(w http.ResponseWriter) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, pageTemplate,
		"Authorization Successful", "#1a7f37", "Authorization Successful",
		"Your account is now linked.",
		"You can close this window. Due date reminders will start with the next check.")
}

func (h *Handler) renderErrorPage(w http.ResponseWriter, status int, message string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	fmt.Fprintf(w, pageTemplate,
		"Authorization Failed", "#cf222e", "Authorization Failed",
		html.EscapeString(message),
		"Request a new authorization link and try again.")
}
