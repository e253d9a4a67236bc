package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/api"
	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

// Default spacing between consecutive stars.
const (
	DefaultMinStarDelay = 1500 * time.Millisecond
	DefaultMaxStarDelay = 3500 * time.Millisecond
)

// CheckpointFunc persists the set after it changed.
type CheckpointFunc func(ctx context.Context, set *domain.TrackedSet) error

// ActuatorConfig holds the collaborators of an Actuator.
type ActuatorConfig struct {
	// Self is the automation account; its own repositories are skipped.
	Self string

	// MinDelay and MaxDelay bound the random pause between stars.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Checkpoint is called after every successful star. Optional.
	Checkpoint CheckpointFunc

	Clock   clock.Clock
	Rand    *rand.Rand
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// EngageReport summarises one EngageAll pass.
type EngageReport struct {
	Attempted int
	Starred   int
	Failed    int
	Skipped   int
}

// Actuator stars candidates and records them for reciprocity tracking.
type Actuator struct {
	starrer    api.Starrer
	self       string
	minDelay   time.Duration
	maxDelay   time.Duration
	checkpoint CheckpointFunc
	clock      clock.Clock
	rng        *rand.Rand
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewActuator creates an actuator, filling defaults for unset fields.
func NewActuator(starrer api.Starrer, config ActuatorConfig) *Actuator {
	a := &Actuator{
		starrer:    starrer,
		self:       config.Self,
		minDelay:   config.MinDelay,
		maxDelay:   config.MaxDelay,
		checkpoint: config.Checkpoint,
		clock:      config.Clock,
		rng:        config.Rand,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}
	if a.minDelay <= 0 && a.maxDelay <= 0 {
		a.minDelay, a.maxDelay = DefaultMinStarDelay, DefaultMaxStarDelay
	}
	if a.maxDelay < a.minDelay {
		a.maxDelay = a.minDelay
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Engage stars one candidate. On success the new record is already in
// set when Engage returns.
func (a *Actuator) Engage(ctx context.Context, set *domain.TrackedSet, c domain.Candidate) (domain.TrackedEngagement, error) {
	if err := a.starrer.StarRepository(ctx, c.FullName); err != nil {
		a.metrics.Star(false)
		return domain.TrackedEngagement{}, fmt.Errorf("engage %s: %w", c.FullName, err)
	}
	a.metrics.Star(true)

	record := domain.NewTrackedEngagement(c.OwnerLogin, c.FullName, a.clock.Now())
	set.Add(record)

	if a.checkpoint != nil {
		if err := a.checkpoint(ctx, set); err != nil {
			a.logger.Warn("checkpoint failed", "repository", c.FullName, "error", err)
		}
	}
	return record, nil
}

// EngageAll stars candidates in order, pausing a random interval between
// stars. Failures are logged and skipped. It stops early when ctx is done.
func (a *Actuator) EngageAll(ctx context.Context, set *domain.TrackedSet, candidates []domain.Candidate) EngageReport {
	var report EngageReport

	for _, c := range candidates {
		if strings.EqualFold(c.OwnerLogin, a.self) {
			report.Skipped++
			continue
		}

		if report.Attempted > 0 {
			if err := a.pause(ctx); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		report.Attempted++
		record, err := a.Engage(ctx, set, c)
		if err != nil {
			report.Failed++
			a.logger.Warn("star failed", "repository", c.FullName, "error", err)
			continue
		}
		report.Starred++
		a.logger.Info("starred", "repository", record.RepositoryFullName, "owner", record.OwnerLogin)
	}

	return report
}

func (a *Actuator) pause(ctx context.Context) error {
	d := a.minDelay
	if span := a.maxDelay - a.minDelay; span > 0 {
		d += time.Duration(a.rng.Int64N(int64(span) + 1))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.clock.After(d):
		return nil
	}
}
