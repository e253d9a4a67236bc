package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

// Searcher finds candidate repositories.
type Searcher interface {
	// SearchRepositories runs a repository search and returns one page of results.
	SearchRepositories(ctx context.Context, query string, perPage, page int) ([]domain.Candidate, error)
}

// Starrer stars and unstars repositories on behalf of the authenticated account.
type Starrer interface {
	StarRepository(ctx context.Context, fullName string) error
	UnstarRepository(ctx context.Context, fullName string) error
}

// Follower manages the follow relationships of the authenticated account.
type Follower interface {
	// IsFollowing reports whether follower follows target.
	IsFollowing(ctx context.Context, follower, target string) (bool, error)
	FollowUser(ctx context.Context, login string) error
	UnfollowUser(ctx context.Context, login string) error
}

// ProfileClient reads public owner and repository details.
type ProfileClient interface {
	GetUser(ctx context.Context, login string) (*domain.OwnerProfile, error)
	HasReadme(ctx context.Context, fullName string) (bool, error)
}

// Client is the full set of operations the automation loop needs.
type Client interface {
	Searcher
	Starrer
	Follower
	ProfileClient
}

// ClientConfig holds configuration for the request client.
type ClientConfig struct {
	BaseURL   string
	Token     string
	UserAgent string

	// HTTPClient performs the requests. Its Timeout bounds each attempt.
	HTTPClient HTTPClient

	// Clock drives backoff waits. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// MaxTransientRetries caps consecutive retries of 5xx gateway
	// errors and transport failures. Defaults to DefaultMaxTransientRetries.
	MaxTransientRetries int

	// TransientBackoff is the wait between transient retries.
	TransientBackoff time.Duration

	// SecondaryLimitBackoff is the wait after a rate-limit response that
	// carries no reset information.
	SecondaryLimitBackoff time.Duration

	// RateLimitMargin is added to the reset time before retrying.
	RateLimitMargin time.Duration
}
