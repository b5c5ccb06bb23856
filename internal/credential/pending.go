package credential

import (
	"sync"
	"time"

	"duewatch/pkg/logging"
)

// DefaultPendingTTL is how long an authorization flow may take before the
// pending entry is discarded.
const DefaultPendingTTL = 10 * time.Minute

// PendingTracker keeps in-flight authorization flows in process memory,
// indexed by subject.
type PendingTracker struct {
	mu      sync.RWMutex
	pending map[string]PendingAuthorization

	ttl         time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewPendingTracker creates a tracker and starts its background cleanup.
func NewPendingTracker(ttl time.Duration, now func() time.Time) *PendingTracker {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if now == nil {
		now = time.Now
	}
	pt := &PendingTracker{
		pending:     make(map[string]PendingAuthorization),
		ttl:         ttl,
		now:         now,
		stopCleanup: make(chan struct{}),
	}

	go pt.cleanupLoop()

	return pt
}

// Track records p, replacing any earlier flow for the same subject.
func (pt *PendingTracker) Track(p PendingAuthorization) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.pending[p.SubjectID] = p
}

// Get returns the live pending flow for subjectID, if any.
func (pt *PendingTracker) Get(subjectID string) (PendingAuthorization, bool) {
	pt.mu.RLock()
	p, ok := pt.pending[subjectID]
	pt.mu.RUnlock()

	if !ok {
		return PendingAuthorization{}, false
	}
	if pt.expired(p) {
		pt.Delete(subjectID)
		return PendingAuthorization{}, false
	}
	return p, true
}

// Delete forgets the pending flow for subjectID.
func (pt *PendingTracker) Delete(subjectID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.pending, subjectID)
}

// Count returns the number of tracked flows, expired or not.
func (pt *PendingTracker) Count() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.pending)
}

// Stop stops the background cleanup goroutine. Safe to call twice.
func (pt *PendingTracker) Stop() {
	pt.stopOnce.Do(func() { close(pt.stopCleanup) })
}

func (pt *PendingTracker) expired(p PendingAuthorization) bool {
	return pt.now().Sub(p.CreatedAt) > pt.ttl
}

func (pt *PendingTracker) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pt.cleanup()
		case <-pt.stopCleanup:
			return
		}
	}
}

func (pt *PendingTracker) cleanup() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	count := 0
	for subject, p := range pt.pending {
		if pt.expired(p) {
			delete(pt.pending, subject)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Credential", "Cleaned up %d expired pending authorizations", count)
	}
}
