package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"duewatch/internal/credential"
)

// Provider is a scriptable credential.Provider. State strings have the form
// "state-<subject>".
type Provider struct {
	mu sync.Mutex

	// RefreshFunc, when set, decides the outcome of Refresh.
	RefreshFunc func(ctx context.Context, record credential.Record) (credential.Record, error)
	// ExchangeErr fails ExchangeCode.
	ExchangeErr error
	// RevokeErr fails Revoke.
	RevokeErr error
	// RefreshDelay slows Refresh down to widen race windows.
	RefreshDelay time.Duration
	// Now stamps refreshed tokens; defaults to time.Now.
	Now func() time.Time

	refreshCalls  atomic.Int32
	buildCalls    atomic.Int32
	exchangeCalls atomic.Int32
	revokeCalls   atomic.Int32
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Provider) BuildAuthorizationURL(subjectID string) (credential.PendingAuthorization, error) {
	p.buildCalls.Add(1)
	state := "state-" + subjectID
	return credential.PendingAuthorization{
		SubjectID: subjectID,
		State:     state,
		Nonce:     "nonce",
		AuthURL:   "https://provider.example.com/auth?state=" + state,
		CreatedAt: p.now(),
	}, nil
}

func (p *Provider) DecodeState(state string) (string, error) {
	subject, ok := strings.CutPrefix(state, "state-")
	if !ok || subject == "" {
		return "", errors.New("malformed state")
	}
	return subject, nil
}

func (p *Provider) ExchangeCode(_ context.Context, code, state string) (credential.Record, error) {
	p.exchangeCalls.Add(1)
	if p.ExchangeErr != nil {
		return credential.Record{}, p.ExchangeErr
	}
	subject, err := p.DecodeState(state)
	if err != nil {
		return credential.Record{}, credential.NewError(credential.KindExchangeFailed, "exchange", "", err)
	}
	return credential.Record{
		SubjectID:    subject,
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		TokenType:    "Bearer",
		Expiry:       p.now().Add(time.Hour),
	}, nil
}

func (p *Provider) Refresh(ctx context.Context, record credential.Record) (credential.Record, error) {
	p.refreshCalls.Add(1)
	if p.RefreshDelay > 0 {
		time.Sleep(p.RefreshDelay)
	}
	p.mu.Lock()
	fn := p.RefreshFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, record)
	}
	record.AccessToken = record.AccessToken + "-refreshed"
	record.Expiry = p.now().Add(time.Hour)
	return record, nil
}

func (p *Provider) Revoke(_ context.Context, _ credential.Record) error {
	p.revokeCalls.Add(1)
	return p.RevokeErr
}

// SetRefreshFunc swaps RefreshFunc safely while calls may be in flight.
func (p *Provider) SetRefreshFunc(fn func(ctx context.Context, record credential.Record) (credential.Record, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RefreshFunc = fn
}

func (p *Provider) RefreshCalls() int  { return int(p.refreshCalls.Load()) }
func (p *Provider) BuildCalls() int    { return int(p.buildCalls.Load()) }
func (p *Provider) ExchangeCalls() int { return int(p.exchangeCalls.Load()) }
func (p *Provider) RevokeCalls() int   { return int(p.revokeCalls.Load()) }
