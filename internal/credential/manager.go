package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"duewatch/pkg/logging"
)

// DefaultExpiryMargin is subtracted from a token's expiry when deciding
// whether it is still usable, to absorb clock skew and request latency.
const DefaultExpiryMargin = 60 * time.Second

// DefaultResolveTimeout bounds one read-refresh-write cycle for a subject.
const DefaultResolveTimeout = 45 * time.Second

// Provider is the OAuth side of the lifecycle. It is implemented by
// oauth.Client.
type Provider interface {
	// BuildAuthorizationURL starts a flow for subjectID.
	BuildAuthorizationURL(subjectID string) (PendingAuthorization, error)
	// DecodeState recovers the subject from a callback state parameter.
	DecodeState(state string) (string, error)
	// ExchangeCode trades an authorization code for a Record.
	ExchangeCode(ctx context.Context, code, state string) (Record, error)
	// Refresh mints a new access token from record's refresh token.
	Refresh(ctx context.Context, record Record) (Record, error)
	// Revoke invalidates the record at the provider, best effort.
	Revoke(ctx context.Context, record Record) error
}

// State is the lifecycle state of one subject.
type State int

const (
	StateUnauthorized State = iota
	StateAuthorizing
	StateAuthorized
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthorized:
		return "unauthorized"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Status is the outcome of GetUsableCredential.
type Status int

const (
	// StatusAuthorized means Result.Record is usable now.
	StatusAuthorized Status = iota
	// StatusAuthorizationRequired means the user must visit Result.AuthURL.
	StatusAuthorizationRequired
	// StatusRetryable means a transient failure prevented a refresh; stored
	// state is unchanged and the caller may retry later.
	StatusRetryable
)

func (s Status) String() string {
	switch s {
	case StatusAuthorized:
		return "authorized"
	case StatusAuthorizationRequired:
		return "authorization_required"
	case StatusRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of resolving a subject's credential.
type Result struct {
	Status  Status
	Record  Record
	AuthURL string
	// Err is the cause of a StatusRetryable result.
	Err error
}

// AuthorizeResult is returned to the command surface by Authorize.
type AuthorizeResult struct {
	AlreadyAuthorized bool
	AuthURL           string
}

// RevokeResult is returned to the command surface by Revoke.
type RevokeResult struct {
	OK bool
	// Existed reports whether a credential was stored before the call.
	Existed bool
}

// ManagerConfig tunes a Manager. Zero values select defaults.
type ManagerConfig struct {
	ExpiryMargin   time.Duration
	PendingTTL     time.Duration
	ResolveTimeout time.Duration
	Now            func() time.Time
}

// Manager combines a Store and a Provider into the credential state machine.
// It keeps no copy of any record between calls; the store is the only source
// of truth.
type Manager struct {
	store    Store
	provider Provider
	pending  *PendingTracker

	locks *LockTable
	group singleflight.Group

	margin         time.Duration
	resolveTimeout time.Duration
	now            func() time.Time
}

// NewManager creates a credential manager.
func NewManager(store Store, provider Provider, cfg ManagerConfig) *Manager {
	if cfg.ExpiryMargin < 0 {
		cfg.ExpiryMargin = 0
	} else if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = DefaultExpiryMargin
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		store:          store,
		provider:       provider,
		pending:        NewPendingTracker(cfg.PendingTTL, cfg.Now),
		locks:          NewLockTable(),
		margin:         cfg.ExpiryMargin,
		resolveTimeout: cfg.ResolveTimeout,
		now:            cfg.Now,
	}
}

// Stop releases background resources.
func (m *Manager) Stop() {
	m.pending.Stop()
}

// GetUsableCredential returns a usable credential for subjectID, refreshing
// an expired one at most once. Only storage failures are returned as errors;
// "not authorized yet" and transient refresh failures are Result statuses.
//
// Concurrent calls for the same subject share a single resolution, so at
// most one refresh request reaches the provider.
func (m *Manager) GetUsableCredential(ctx context.Context, subjectID string) (Result, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Result{}, ErrEmptySubject
	}

	ch := m.group.DoChan(subjectID, func() (interface{}, error) {
		// Detached so a cancelled first caller does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.resolveTimeout)
		defer cancel()
		return m.resolve(rctx, subjectID)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

func (m *Manager) resolve(ctx context.Context, subjectID string) (Result, error) {
	unlock := m.locks.Lock(subjectID)
	defer unlock()

	record, err := m.store.Get(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return m.authorizationRequired(subjectID)
	}
	if err != nil {
		return Result{}, StorageError("get", subjectID, err)
	}

	if !record.IsExpired(m.now(), m.margin) {
		return Result{Status: StatusAuthorized, Record: record}, nil
	}

	if !record.CanRefresh() {
		logging.Info("Credential", "Credential for subject=%s expired without refresh token, re-authorization required",
			logging.TruncateID(subjectID))
		if err := m.store.Delete(ctx, subjectID); err != nil {
			return Result{}, StorageError("delete", subjectID, err)
		}
		return m.authorizationRequired(subjectID)
	}

	start := m.now()
	refreshed, err := m.provider.Refresh(ctx, record)
	switch {
	case err == nil:
		refreshed.SubjectID = subjectID
		refreshed.CreatedAt = record.CreatedAt
		refreshed.UpdatedAt = m.now().UTC()
		if len(refreshed.Scopes) == 0 {
			refreshed.Scopes = record.Scopes
		}
		if err := m.store.Put(ctx, refreshed); err != nil {
			return Result{}, StorageError("put", subjectID, err)
		}
		logging.Info("Credential", "Refreshed credential for subject=%s in %v (expires %s)",
			logging.TruncateID(subjectID), m.now().Sub(start), refreshed.Expiry.Format(time.RFC3339))
		return Result{Status: StatusAuthorized, Record: refreshed}, nil

	case IsKind(err, KindRefreshRejected):
		logging.Warn("Credential", "Refresh token rejected for subject=%s, deleting credential",
			logging.TruncateID(subjectID))
		if err := m.store.Delete(ctx, subjectID); err != nil {
			return Result{}, StorageError("delete", subjectID, err)
		}
		return m.authorizationRequired(subjectID)

	default:
		if KindOf(err) != KindTransient {
			err = NewError(KindTransient, "refresh", subjectID, err)
		}
		logging.Error("Credential", err, "Transient refresh failure for subject=%s", logging.TruncateID(subjectID))
		return Result{Status: StatusRetryable, Err: err}, nil
	}
}

// authorizationRequired returns the pending flow for subjectID, starting one
// if none is live. Callers hold the subject lock.
func (m *Manager) authorizationRequired(subjectID string) (Result, error) {
	if p, ok := m.pending.Get(subjectID); ok {
		return Result{Status: StatusAuthorizationRequired, AuthURL: p.AuthURL}, nil
	}

	p, err := m.provider.BuildAuthorizationURL(subjectID)
	if err != nil {
		return Result{}, errorf(KindUnknown, "build authorization url", subjectID, "%w", err)
	}
	m.pending.Track(p)

	logging.Info("Credential", "Authorization URL generated for subject=%s", logging.TruncateID(subjectID))
	return Result{Status: StatusAuthorizationRequired, AuthURL: p.AuthURL}, nil
}

// Authorize is the command-surface entry point: it reports an existing usable
// credential or returns the URL the user must visit.
func (m *Manager) Authorize(ctx context.Context, subjectID string) (AuthorizeResult, error) {
	res, err := m.GetUsableCredential(ctx, subjectID)
	if err != nil {
		return AuthorizeResult{}, err
	}

	switch res.Status {
	case StatusAuthorized:
		return AuthorizeResult{AlreadyAuthorized: true}, nil
	case StatusAuthorizationRequired:
		return AuthorizeResult{AuthURL: res.AuthURL}, nil
	default:
		return AuthorizeResult{}, res.Err
	}
}

// CompleteAuthorization exchanges code for a credential and persists it for
// subjectID. The state must have been issued for the same subject.
func (m *Manager) CompleteAuthorization(ctx context.Context, subjectID, code, state string) error {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return ErrEmptySubject
	}

	stateSubject, err := m.provider.DecodeState(state)
	if err != nil {
		return NewError(KindExchangeFailed, "decode state", subjectID, err)
	}
	if stateSubject != subjectID {
		return errorf(KindExchangeFailed, "decode state", subjectID, "state was issued for a different subject")
	}

	unlock := m.locks.Lock(subjectID)
	defer unlock()

	record, err := m.provider.ExchangeCode(ctx, code, state)
	if err != nil {
		logging.Error("Credential", err, "Code exchange failed for subject=%s", logging.TruncateID(subjectID))
		return err
	}

	now := m.now().UTC()
	record.SubjectID = subjectID
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := m.store.Put(ctx, record); err != nil {
		return StorageError("put", subjectID, err)
	}
	m.pending.Delete(subjectID)

	logging.Info("Credential", "Authorization completed for subject=%s (refresh token: %t)",
		logging.TruncateID(subjectID), record.CanRefresh())
	return nil
}

// CompleteCallback completes a flow from the raw callback parameters and
// returns the subject recovered from state.
func (m *Manager) CompleteCallback(ctx context.Context, code, state string) (string, error) {
	subjectID, err := m.provider.DecodeState(state)
	if err != nil {
		return "", NewError(KindExchangeFailed, "decode state", "", err)
	}
	if err := m.CompleteAuthorization(ctx, subjectID, code, state); err != nil {
		return subjectID, err
	}
	return subjectID, nil
}

// Revoke deletes the subject's credential unconditionally. It succeeds when
// nothing is stored. Provider-side revocation is attempted but its failure
// does not fail the call.
func (m *Manager) Revoke(ctx context.Context, subjectID string) (RevokeResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return RevokeResult{}, ErrEmptySubject
	}

	unlock := m.locks.Lock(subjectID)
	defer unlock()

	existed := false
	record, err := m.store.Get(ctx, subjectID)
	switch {
	case err == nil:
		existed = true
		if rerr := m.provider.Revoke(ctx, record); rerr != nil {
			logging.Warn("Credential", "Provider-side revocation failed for subject=%s: %v",
				logging.TruncateID(subjectID), rerr)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return RevokeResult{}, StorageError("get", subjectID, err)
	}

	if err := m.store.Delete(ctx, subjectID); err != nil {
		return RevokeResult{}, StorageError("delete", subjectID, err)
	}
	m.pending.Delete(subjectID)

	logging.Info("Credential", "Revoked credential for subject=%s (existed: %t)", logging.TruncateID(subjectID), existed)
	return RevokeResult{OK: true, Existed: existed}, nil
}

// Status reports the lifecycle state of subjectID without refreshing.
func (m *Manager) Status(ctx context.Context, subjectID string) (State, error) {
	record, err := m.store.Get(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		if _, ok := m.pending.Get(subjectID); ok {
			return StateAuthorizing, nil
		}
		return StateUnauthorized, nil
	}
	if err != nil {
		return StateUnauthorized, StorageError("get", subjectID, err)
	}
	if record.IsExpired(m.now(), m.margin) {
		return StateExpired, nil
	}
	return StateAuthorized, nil
}

// Lookup returns the stored record without refreshing it.
func (m *Manager) Lookup(ctx context.Context, subjectID string) (Record, error) {
	record, err := m.store.Get(ctx, subjectID)
	if err != nil {
		return Record{}, StorageError("get", subjectID, err)
	}
	return record, nil
}
