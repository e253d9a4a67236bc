package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

// Scheduling defaults.
const (
	DefaultWindowStart      = "0 21 * * *"
	DefaultWindowHours      = 3
	DefaultProgressInterval = 10 * time.Minute
)

// Persister writes the tracked set to durable storage.
type Persister interface {
	Save(ctx context.Context, records []domain.TrackedEngagement) error
}

// SchedulerConfig wires the components of one automation loop.
type SchedulerConfig struct {
	Discovery *Discovery
	Filter    *OwnerFilter // optional
	Actuator  *Actuator
	Tracker   *Tracker
	Store     Persister

	MaxStars        int
	PageSize        int
	Pages           int
	GracePeriodDays int

	// WindowStart is a cron expression for the start of the daily window.
	WindowStart string
	// WindowHours is the width of the window the wake time is spread over.
	WindowHours int
	// FirstOffset shifts the first computed wake only. It may be negative.
	FirstOffset time.Duration
	// ProgressInterval is how often a sleeping scheduler logs.
	ProgressInterval time.Duration
	// SkipInitial makes Run sleep before its first cycle.
	SkipInitial bool

	Clock   clock.Clock
	Rand    *rand.Rand
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// CycleReport summarises one cycle.
type CycleReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Discovered int
	Eligible   int
	Engage     EngageReport
	Sweep      SweepReport
}

// Scheduler drives discover, engage, sweep and persist on a daily window.
// It owns the tracked set for the lifetime of the process.
type Scheduler struct {
	set              *domain.TrackedSet
	discovery        *Discovery
	filter           *OwnerFilter
	actuator         *Actuator
	tracker          *Tracker
	store            Persister
	query            DiscoveryQuery
	gracePeriodDays  int
	window           cron.Schedule
	windowHours      int
	firstOffset      time.Duration
	progressInterval time.Duration
	skipInitial      bool
	clock            clock.Clock
	rng              *rand.Rand
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// NewScheduler creates a scheduler over set.
func NewScheduler(set *domain.TrackedSet, config SchedulerConfig) (*Scheduler, error) {
	if set == nil {
		return nil, errors.New("tracked set is required")
	}
	if config.Discovery == nil || config.Actuator == nil || config.Tracker == nil || config.Store == nil {
		return nil, errors.New("discovery, actuator, tracker and store are required")
	}

	expr := config.WindowStart
	if expr == "" {
		expr = DefaultWindowStart
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	window, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid window start %q: %w", expr, err)
	}

	s := &Scheduler{
		set:       set,
		discovery: config.Discovery,
		filter:    config.Filter,
		actuator:  config.Actuator,
		tracker:   config.Tracker,
		store:     config.Store,
		query: DiscoveryQuery{
			MaxStars: config.MaxStars,
			PageSize: config.PageSize,
			Pages:    config.Pages,
		},
		gracePeriodDays:  config.GracePeriodDays,
		window:           window,
		windowHours:      config.WindowHours,
		firstOffset:      config.FirstOffset,
		progressInterval: config.ProgressInterval,
		skipInitial:      config.SkipInitial,
		clock:            config.Clock,
		rng:              config.Rand,
		logger:           config.Logger,
		metrics:          config.Metrics,
	}
	if s.windowHours <= 0 {
		s.windowHours = DefaultWindowHours
	}
	if s.progressInterval <= 0 {
		s.progressInterval = DefaultProgressInterval
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Run loops cycle, persist and sleep until ctx is cancelled. Failures
// inside a cycle are logged and the loop carries on. Cancellation is a
// clean shutdown: the set is flushed once more and Run returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.SetPending(s.set.Len())
	s.logger.Info("scheduler starting", "pending", s.set.Len(), "grace_period_days", s.gracePeriodDays)

	if !s.skipInitial {
		s.runCycle(ctx)
	}

	for first := true; ctx.Err() == nil; first = false {
		wake := s.NextWake(s.clock.Now(), first)
		s.logger.Info("next cycle scheduled", "at", wake.Format(time.RFC3339))

		if err := s.sleepUntil(ctx, wake); err != nil {
			break
		}
		s.runCycle(ctx)
	}

	s.logger.Info("scheduler stopping, flushing state", "pending", s.set.Len())
	if err := s.persist(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("final flush failed", "error", err)
	}
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("cycle failed", "error", err)
	}
}

// RunCycle runs discover, engage, sweep and persist once. Discovery and
// engagement failures are logged and do not stop the sweep. The returned
// error reports a failed persist or a cancelled context.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString(), StartedAt: s.clock.Now()}
	log := s.logger.With("cycle", report.ID)
	log.Info("cycle starting", "pending", s.set.Len())

	query := s.query
	query.PushedOn = report.StartedAt
	candidates, err := s.discovery.Discover(ctx, query)
	switch {
	case errors.Is(err, ErrNoCandidates):
		log.Info("no candidates found", "query", query.String())
	case err != nil:
		log.Warn("discovery failed", "query", query.String(), "kept", len(candidates), "error", err)
	}
	report.Discovered = len(candidates)
	s.metrics.Discovered(len(candidates))

	if s.filter != nil && len(candidates) > 0 {
		candidates = s.filter.Filter(ctx, candidates)
	}
	report.Eligible = len(candidates)

	report.Engage = s.actuator.EngageAll(ctx, s.set, candidates)
	log.Info("engagement complete",
		"attempted", report.Engage.Attempted,
		"starred", report.Engage.Starred,
		"failed", report.Engage.Failed)

	sweep, sweepErr := s.tracker.Sweep(ctx, s.set, s.gracePeriodDays)
	report.Sweep = sweep

	persistErr := s.persist(context.WithoutCancel(ctx))
	report.FinishedAt = s.clock.Now()

	if sweepErr != nil {
		return report, sweepErr
	}
	if persistErr != nil {
		return report, persistErr
	}

	s.metrics.CycleCompleted(report.FinishedAt)
	log.Info("cycle complete",
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Second),
		"pending", s.set.Len())
	return report, nil
}

// NextWake returns the wake time for a cycle ending at now: the first
// window start on a later calendar day, spread by random hours, minutes
// and seconds. The first offset applies when first is set; a wake that
// would land in the past is clamped to now.
func (s *Scheduler) NextWake(now time.Time, first bool) time.Time {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	wake := s.window.Next(endOfDay)

	wake = wake.Add(time.Duration(s.rng.IntN(s.windowHours)) * time.Hour)
	wake = wake.Add(time.Duration(s.rng.IntN(60)) * time.Minute)
	wake = wake.Add(time.Duration(s.rng.IntN(60)) * time.Second)

	if first {
		wake = wake.Add(s.firstOffset)
	}
	if wake.Before(now) {
		return now
	}
	return wake
}

// sleepUntil counts down to wake in progressInterval steps.
func (s *Scheduler) sleepUntil(ctx context.Context, wake time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := wake.Sub(s.clock.Now())
		if remaining <= 0 {
			return nil
		}
		s.logger.Debug("sleeping", "remaining", remaining.Round(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(min(remaining, s.progressInterval)):
		}
	}
}

func (s *Scheduler) persist(ctx context.Context) error {
	if err := s.store.Save(ctx, s.set.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist tracked set: %w", err)
	}
	return nil
}
