package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultStateTTL is how long an issued state parameter stays valid.
const DefaultStateTTL = 10 * time.Minute

var (
	// ErrInvalidState is returned for a state that is malformed or whose
	// signature does not verify.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrStateExpired is returned for a well-formed state older than its TTL.
	ErrStateExpired = errors.New("oauth state expired")
)

// statePayload is the signed content of a state parameter.
type statePayload struct {
	Subject  string `json:"sub"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"iat"`
}

// StateCodec issues and verifies self-contained state parameters of the form
// base64url(payload) "." base64url(HMAC-SHA256(payload)). Any process that
// knows the secret can verify a state, so the callback may be served by a
// different process than the one that built the authorization URL.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateCodec creates a codec. secret must not be empty.
func NewStateCodec(secret []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("state secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{secret: secret, ttl: ttl, now: now}, nil
}

// Encode issues a state for subject and returns it with its nonce.
func (c *StateCodec) Encode(subject string) (state, nonce string, err error) {
	if strings.TrimSpace(subject) == "" {
		return "", "", errors.New("subject is required")
	}
	nonce = uuid.NewString()
	payload, err := json.Marshal(statePayload{
		Subject:  subject,
		Nonce:    nonce,
		IssuedAt: c.now().Unix(),
	})
	if err != nil {
		return "", "", err
	}

	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + c.sign(body), nonce, nil
}

// Decode verifies state and returns its payload.
func (c *StateCodec) Decode(state string) (statePayload, error) {
	body, sig, ok := strings.Cut(state, ".")
	if !ok || body == "" || sig == "" {
		return statePayload{}, ErrInvalidState
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(body))) {
		return statePayload{}, ErrInvalidState
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return statePayload{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	var p statePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return statePayload{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if p.Subject == "" || p.Nonce == "" {
		return statePayload{}, ErrInvalidState
	}

	age := c.now().Sub(time.Unix(p.IssuedAt, 0))
	if age > c.ttl || age < -time.Minute {
		return statePayload{}, ErrStateExpired
	}
	return p, nil
}

// Verifier derives the PKCE code verifier for a flow from its nonce, so the
// verifier never travels in the authorization URL yet can be recomputed at
// callback time.
func (c *StateCodec) Verifier(nonce string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte("pkce:" + nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *StateCodec) sign(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
