package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/api"
	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

// ReciprocityClient is what a sweep needs from the API.
type ReciprocityClient interface {
	api.Starrer
	api.Follower
}

// TrackerConfig holds the collaborators of a Tracker.
type TrackerConfig struct {
	// Self is the automation account whose followers are checked.
	Self string

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Checked     int
	Followed    int
	Expired     int
	Pending     int
	Errors      int
	Transitions []domain.Transition
}

// Tracker decides, for each pending engagement, whether to follow the
// owner back, reverse the star, or keep waiting.
type Tracker struct {
	client  ReciprocityClient
	self    string
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTracker creates a tracker.
func NewTracker(client ReciprocityClient, config TrackerConfig) *Tracker {
	t := &Tracker{
		client:  client,
		self:    config.Self,
		clock:   config.Clock,
		logger:  config.Logger,
		metrics: config.Metrics,
	}
	if t.clock == nil {
		t.clock = clock.Real()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Sweep evaluates every record in set once. Records that reach FOLLOWED
// or EXPIRED are removed after the pass; records appended to set while
// the sweep runs are left for the next one. Per-record failures leave the
// record pending. The only error returned is ctx's, in which case the
// removals decided so far are still applied.
func (t *Tracker) Sweep(ctx context.Context, set *domain.TrackedSet, gracePeriodDays int) (SweepReport, error) {
	var report SweepReport
	today := domain.DateOf(t.clock.Now())
	snapshot := set.Snapshot()
	done := make(map[int]struct{})

	var err error
	for i, record := range snapshot {
		if err = ctx.Err(); err != nil {
			break
		}
		report.Checked++

		kind, ok := t.evaluate(ctx, record, today, gracePeriodDays)
		if !ok {
			report.Errors++
		}
		switch kind {
		case domain.TransitionFollowed:
			report.Followed++
		case domain.TransitionExpired:
			report.Expired++
		default:
			report.Pending++
			continue
		}

		done[i] = struct{}{}
		report.Transitions = append(report.Transitions, domain.Transition{
			Kind:       kind,
			Record:     record,
			OccurredAt: t.clock.Now(),
		})
		t.metrics.Transition(kind)
	}

	set.RemovePositions(done)
	t.metrics.SetPending(set.Len())

	t.logger.Info("sweep complete",
		"checked", report.Checked,
		"followed", report.Followed,
		"expired", report.Expired,
		"pending", report.Pending,
		"errors", report.Errors)

	return report, err
}

// evaluate runs the state machine for one record. It returns the
// terminal transition reached, or "" when the record stays pending, and
// false when a request failure kept it pending.
func (t *Tracker) evaluate(ctx context.Context, record domain.TrackedEngagement, today time.Time, gracePeriodDays int) (string, bool) {
	log := t.logger.With("repository", record.RepositoryFullName, "owner", record.OwnerLogin)

	follows, err := t.client.IsFollowing(ctx, record.OwnerLogin, t.self)
	if err != nil {
		t.metrics.FollowCheck(metrics.FollowCheckError)
		log.Warn("follow check failed, keeping record", "error", err)
		return "", false
	}

	if follows {
		t.metrics.FollowCheck(metrics.FollowCheckYes)
		if err := t.client.FollowUser(ctx, record.OwnerLogin); err != nil {
			log.Warn("follow back failed, keeping record", "error", err)
			return "", false
		}
		log.Info("owner followed back")
		return domain.TransitionFollowed, true
	}
	t.metrics.FollowCheck(metrics.FollowCheckNo)

	if !record.IsExpired(today, gracePeriodDays) {
		return "", true
	}

	unstarErr := t.client.UnstarRepository(ctx, record.RepositoryFullName)
	if unstarErr != nil && !api.IsNotFound(unstarErr) {
		if record.AgeDays(today) <= abandonAge(gracePeriodDays) {
			log.Warn("unstar failed, keeping record", "error", unstarErr)
			return "", false
		}
		log.Warn("unstar keeps failing, dropping record", "age_days", record.AgeDays(today), "error", unstarErr)
	}
	if err := t.client.UnfollowUser(ctx, record.OwnerLogin); err != nil {
		log.Warn("unfollow failed", "error", err)
	}
	log.Info("engagement expired", "age_days", record.AgeDays(today))
	return domain.TransitionExpired, unstarErr == nil || api.IsNotFound(unstarErr)
}

// abandonAge is the age past which a record whose unstar keeps failing
// is removed anyway.
func abandonAge(gracePeriodDays int) int {
	return gracePeriodDays + max(gracePeriodDays, 1)
}
