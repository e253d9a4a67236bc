package cli

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vilaca/reciprocity-bot/internal/api"
	"github.com/vilaca/reciprocity-bot/internal/api/github"
	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/config"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
	"github.com/vilaca/reciprocity-bot/internal/service"
	"github.com/vilaca/reciprocity-bot/internal/state"
)

// app is the composition root shared by the run and sweep commands.
type app struct {
	cfg     *config.Config
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	client  *github.Client
	store   state.Store
	set     *domain.TrackedSet
}

// newApp wires the API client and loads the tracked set.
func newApp(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*app, error) {
	m := metrics.New()

	requester := api.NewRequestClient(api.ClientConfig{
		BaseURL:    cfg.GitHub.URL,
		Token:      cfg.GitHub.Token,
		HTTPClient: &http.Client{Timeout: cfg.GitHub.RequestTimeout},
		Clock:      clk,
		Logger:     logger,
		Metrics:    m,
	})

	store, err := state.Open(cfg.Tracking.StateFile, logger)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open state", err)
	}
	records, err := store.Load(ctx)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitFailure, "failed to load state", err)
	}

	return &app{
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		metrics: m,
		client:  github.NewClient(requester),
		store:   store,
		set:     domain.NewTrackedSet(records...),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing state store", "error", err)
	}
}

func (a *app) tracker() *service.Tracker {
	return service.NewTracker(a.client, service.TrackerConfig{
		Self:    a.cfg.GitHub.Username,
		Clock:   a.clock,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
}

// checkpoint persists the set after every star.
func (a *app) checkpoint(ctx context.Context, set *domain.TrackedSet) error {
	return a.store.Save(context.WithoutCancel(ctx), set.Snapshot())
}

func (a *app) scheduler(skipInitial bool) (*service.Scheduler, error) {
	cfg := a.cfg

	var filter *service.OwnerFilter
	if cfg.OwnerFilter.Enabled {
		profiles := api.NewCachingClient(a.client, cfg.OwnerFilter.CacheTTL, a.clock, a.logger)
		filter = service.NewOwnerFilter(profiles, cfg.OwnerFilter.RequireReadme, a.logger)
	}

	return service.NewScheduler(a.set, service.SchedulerConfig{
		Discovery: service.NewDiscovery(a.client, nil, a.logger),
		Filter:    filter,
		Actuator: service.NewActuator(a.client, service.ActuatorConfig{
			Self:       cfg.GitHub.Username,
			MinDelay:   cfg.Schedule.MinStarDelay,
			MaxDelay:   cfg.Schedule.MaxStarDelay,
			Checkpoint: a.checkpoint,
			Clock:      a.clock,
			Logger:     a.logger,
			Metrics:    a.metrics,
		}),
		Tracker:          a.tracker(),
		Store:            a.store,
		MaxStars:         cfg.Discovery.MaxStars,
		PageSize:         cfg.Discovery.ReposPerPage,
		Pages:            cfg.Discovery.Pages,
		GracePeriodDays:  cfg.Tracking.GracePeriodDays,
		WindowStart:      cfg.Schedule.WindowStart,
		WindowHours:      cfg.Schedule.WindowHours,
		FirstOffset:      cfg.Schedule.FirstOffset,
		ProgressInterval: cfg.Schedule.ProgressInterval,
		SkipInitial:      skipInitial,
		Clock:            a.clock,
		Logger:           a.logger,
		Metrics:          a.metrics,
	})
}
