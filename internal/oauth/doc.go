// Package oauth is the provider side of the credential lifecycle.
//
// Client wraps golang.org/x/oauth2 for the authorization code flow with
// offline access: it builds consent URLs, exchanges codes, refreshes access
// tokens and revokes grants. Provider failures are classified into
// credential.Error kinds so the credential manager can tell a revoked grant
// (re-authorize) from a network hiccup (retry later). Provider response
// bodies are never propagated.
//
// # State parameter
//
// The state is self-contained and signed:
//
//	base64url(JSON{sub, nonce, iat}) "." base64url(HMAC-SHA256(secret, payload))
//
// so a callback arriving at the long-running server can be verified even when
// the authorization URL was produced by a separate CLI invocation. States
// expire after StateTTL. With PKCE enabled the code verifier is derived from
// the nonce and the same secret, so it never appears in the URL.
//
// # Callback
//
// Handler serves the redirect URI. It delegates to a CallbackCompleter
// (credential.Manager) and renders a small HTML page with restrictive
// security headers. Only fixed, user-facing messages are rendered.
//
// # TLS
//
// Production deployments must expose the callback over HTTPS, since the
// authorization code travels in its query string.
package oauth
