package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"duewatch/pkg/logging"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultSchedule        = "@every 24h"
	DefaultConcurrency     = 4
	DefaultFetchTimeout    = 60 * time.Second
	DefaultDeliveryTimeout = 15 * time.Second
)

// Config controls sweeps and their period.
type Config struct {
	// Schedule is a cron expression or descriptor such as "@every 24h" or "0 9 * * *".
	Schedule string
	// Location is the time zone Schedule is evaluated in. Nil means local time.
	Location *time.Location
	// Concurrency bounds how many users are processed at once.
	Concurrency int
	// FetchTimeout bounds one user's data-source fetch.
	FetchTimeout time.Duration
	// DeliveryTimeout bounds one delivery attempt.
	DeliveryTimeout time.Duration
	// RunOnStart runs a sweep immediately when Start is called.
	RunOnStart bool
	// MessageTemplate overrides DefaultMessageTemplate.
	MessageTemplate string
}

// Outcome is what happened to one user during a scan.
type Outcome string

const (
	OutcomeNoMatch         Outcome = "no_match"
	OutcomeNotified        Outcome = "notified"
	OutcomeAlreadyNotified Outcome = "already_notified"
	OutcomeFetchFailed     Outcome = "fetch_failed"
	OutcomeDeliveryFailed  Outcome = "delivery_failed"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomePanicked        Outcome = "panicked"
)

// UserResult records the outcome for one user.
type UserResult struct {
	SubjectID string
	Outcome   Outcome
	Matched   int
	Err       error
}

// SweepReport summarises one Scan, and the reset when run through RunSweep.
type SweepReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []UserResult
	// Reset is true once EndPeriod ran for this sweep.
	Reset bool
}

// Count returns how many users ended with outcome.
func (r *SweepReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Scheduler runs notification sweeps over a Registry.
type Scheduler struct {
	registry  *Registry
	sources   map[string]DataSource
	deliverer Deliverer
	renderer  *MessageRenderer
	config    Config

	// sweepMu serialises RunSweep so a manual sweep never interleaves with
	// a scheduled one.
	sweepMu sync.Mutex

	mu         sync.Mutex
	cron       *cron.Cron
	cancel     context.CancelFunc
	running    bool
	wg         sync.WaitGroup
	lastReport *SweepReport
}

// New creates a scheduler. Each user's Source must name one of sources.
func New(registry *Registry, sources []DataSource, deliverer Deliverer, config Config) (*Scheduler, error) {
	if registry == nil {
		return nil, errors.New("scheduler: registry is required")
	}
	if deliverer == nil {
		return nil, errors.New("scheduler: deliverer is required")
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}

	renderer, err := NewMessageRenderer(config.MessageTemplate)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]DataSource, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
	}

	return &Scheduler{
		registry:  registry,
		sources:   byName,
		deliverer: deliverer,
		renderer:  renderer,
		config:    config,
	}, nil
}

// Registry returns the registry the scheduler sweeps.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// LastReport returns the report of the most recent RunSweep, or nil.
func (s *Scheduler) LastReport() *SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// RunSweep performs one full period: Scan, then EndPeriod. If ctx is
// cancelled during the scan the reset is skipped and users already
// processed keep their flags. A registry that cannot be loaded aborts the
// sweep with ErrRegistryUnavailable.
func (s *Scheduler) RunSweep(ctx context.Context) (*SweepReport, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	report, err := s.Scan(ctx)
	if err != nil {
		return report, err
	}

	if ctx.Err() != nil {
		logging.Warn("Scheduler", "Sweep %s interrupted, skipping end-of-period reset", report.ID)
	} else {
		s.EndPeriod()
		report.Reset = true
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()
	return report, ctx.Err()
}

// Scan processes every registered user once. Per-user failures are logged
// and recorded in the report; they never abort the scan.
func (s *Scheduler) Scan(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{ID: uuid.NewString(), StartedAt: time.Now()}

	if err := s.registry.Reload(); err != nil {
		logging.Error("Scheduler", err, "Sweep %s aborted: registry could not be loaded", report.ID)
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	users := s.registry.Users()
	report.Results = make([]UserResult, len(users))
	logging.Info("Scheduler", "Sweep %s started for %d users", report.ID, len(users))

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, user := range users {
		if ctx.Err() != nil {
			report.Results[i] = UserResult{SubjectID: user.SubjectID, Outcome: OutcomeCancelled, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			report.Results[i] = s.processUser(ctx, user)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	logging.Info("Scheduler", "Sweep %s scanned %d users in %s: notified=%d fetch_failed=%d delivery_failed=%d",
		report.ID, len(users), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Count(OutcomeNotified), report.Count(OutcomeFetchFailed), report.Count(OutcomeDeliveryFailed))
	return report, nil
}

// EndPeriod clears every user's notified flag.
func (s *Scheduler) EndPeriod() {
	s.registry.ResetPeriod()
	logging.Info("Scheduler", "Notification period ended, flags reset for %d users", s.registry.Len())
}

func (s *Scheduler) processUser(ctx context.Context, user RegisteredUser) (result UserResult) {
	result.SubjectID = user.SubjectID
	subject := logging.TruncateID(user.SubjectID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing user: %v", r)
			logging.Error("Scheduler", err, "Recovered from panic for subject=%s", subject)
			result.Outcome = OutcomePanicked
			result.Err = err
		}
	}()

	if ctx.Err() != nil {
		result.Outcome = OutcomeCancelled
		result.Err = ctx.Err()
		return result
	}

	if s.registry.Notified(user.SubjectID) {
		result.Outcome = OutcomeAlreadyNotified
		return result
	}

	src, ok := s.sources[user.Source]
	if !ok {
		result.Outcome = OutcomeFetchFailed
		result.Err = fmt.Errorf("%w: %q", ErrUnknownSource, user.Source)
		logging.Error("Scheduler", result.Err, "No data source for subject=%s", subject)
		return result
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	items, err := src.Fetch(fetchCtx, user)
	cancel()
	if err != nil {
		result.Outcome = OutcomeFetchFailed
		result.Err = err
		if errors.Is(err, ErrAuthorizationRequired) {
			logging.Warn("Scheduler", "Skipping subject=%s: authorization required", subject)
		} else {
			logging.Error("Scheduler", err, "Fetch from %s failed for subject=%s", src.Name(), subject)
		}
		return result
	}

	matches := MatchingItems(items)
	result.Matched = len(matches)
	if len(matches) == 0 {
		result.Outcome = OutcomeNoMatch
		logging.Debug("Scheduler", "No items in alert window for subject=%s (%d fetched)", subject, len(items))
		return result
	}

	text, err := s.renderer.Render(user, matches)
	if err != nil {
		result.Outcome = OutcomeDeliveryFailed
		result.Err = err
		logging.Error("Scheduler", err, "Message rendering failed for subject=%s", subject)
		return result
	}

	// The flag is claimed before the attempt so concurrent scans send at
	// most one message; it stays set even if delivery fails.
	if !s.registry.MarkNotified(user.SubjectID) {
		result.Outcome = OutcomeAlreadyNotified
		return result
	}

	deliverCtx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	err = s.deliverer.Deliver(deliverCtx, user.Recipient, text)
	cancel()
	if err != nil {
		result.Outcome = OutcomeDeliveryFailed
		result.Err = err
		logging.Error("Scheduler", err, "Delivery failed for subject=%s", subject)
		return result
	}

	result.Outcome = OutcomeNotified
	logging.Info("Scheduler", "Notified subject=%s about %d items", subject, len(matches))
	return result
}

// Start schedules sweeps on the configured period. The sweep in flight is
// cancelled by Stop or by cancelling ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	job := s.sweepJob(runCtx)
	c := cron.New(
		cron.WithLocation(s.config.Location),
		cron.WithLogger(cronLogger{}),
	)
	if _, err := c.AddJob(s.config.Schedule, job); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron = c
	s.cancel = cancel
	s.running = true
	c.Start()

	if s.config.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run()
		}()
	}

	logging.Info("Scheduler", "Started with schedule %q in %s", s.config.Schedule, s.config.Location)
	return nil
}

// sweepJob wraps scheduledSweep for cron. The start-up run goes through the
// same job, so a tick that fires while any sweep is running is skipped.
func (s *Scheduler) sweepJob(ctx context.Context) cron.Job {
	logger := cronLogger{}
	return cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.scheduledSweep(ctx) }))
}

func (s *Scheduler) scheduledSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunSweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Scheduler", err, "Scheduled sweep failed")
	}
}

// Stop cancels any in-flight sweep and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	logging.Info("Scheduler", "Stopped")
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
