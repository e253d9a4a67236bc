package service

import (
	"context"
	"log/slog"

	"github.com/vilaca/reciprocity-bot/internal/api"
	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// OwnerFilter drops candidates whose owners are unlikely to follow back.
// Lookups that fail keep the candidate.
type OwnerFilter struct {
	profiles      api.ProfileClient
	requireReadme bool
	logger        *slog.Logger
}

// NewOwnerFilter creates an owner filter. profiles is usually an
// *api.CachingClient so repeated owners cost one lookup.
func NewOwnerFilter(profiles api.ProfileClient, requireReadme bool, logger *slog.Logger) *OwnerFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnerFilter{profiles: profiles, requireReadme: requireReadme, logger: logger}
}

// Filter returns the candidates worth engaging, preserving order.
func (f *OwnerFilter) Filter(ctx context.Context, candidates []domain.Candidate) []domain.Candidate {
	kept := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if f.accept(ctx, c) {
			kept = append(kept, c)
		}
	}

	if dropped := len(candidates) - len(kept); dropped > 0 {
		f.logger.Info("owner filter dropped candidates", "dropped", dropped, "kept", len(kept))
	}
	return kept
}

func (f *OwnerFilter) accept(ctx context.Context, c domain.Candidate) bool {
	profile, err := f.profiles.GetUser(ctx, c.OwnerLogin)
	if err != nil {
		f.logger.Warn("owner lookup failed, keeping candidate", "owner", c.OwnerLogin, "error", err)
	} else if !profile.FollowsBackLikely() {
		f.logger.Debug("skipping owner", "owner", c.OwnerLogin,
			"followers", profile.Followers, "following", profile.Following)
		return false
	}

	if !f.requireReadme {
		return true
	}

	present, err := f.profiles.HasReadme(ctx, c.FullName)
	if err != nil {
		f.logger.Warn("readme lookup failed, keeping candidate", "repository", c.FullName, "error", err)
		return true
	}
	if !present {
		f.logger.Debug("skipping repository without readme", "repository", c.FullName)
	}
	return present
}
