package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/api"
	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// ErrNoCandidates is returned when a discovery produced nothing to engage.
var ErrNoCandidates = errors.New("no candidates found")

// pageSizeJitter is the relative spread applied to the requested page size.
const pageSizeJitter = 0.10

// DiscoveryQuery selects fresh, low-visibility repositories.
type DiscoveryQuery struct {
	MaxStars int       // strictly below this star count
	PageSize int       // requested per_page before jitter
	Pages    int       // number of pages to fetch
	PushedOn time.Time // calendar date of the last push
}

// String renders the search expression for q.
func (q DiscoveryQuery) String() string {
	return fmt.Sprintf("stars:<%d pushed:%s", q.MaxStars, domain.DateOf(q.PushedOn).Format(domain.DateLayout))
}

// Discovery finds candidate repositories through the search API.
type Discovery struct {
	searcher api.Searcher
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewDiscovery creates a discovery. rng drives page size jitter and the
// final shuffle; a nil rng uses a randomly seeded source.
func NewDiscovery(searcher api.Searcher, rng *rand.Rand, logger *slog.Logger) *Discovery {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{searcher: searcher, rng: rng, logger: logger}
}

// Discover fetches up to q.Pages pages of candidates, deduplicated by
// full name and returned in random order. A page that fails stops the
// discovery; candidates from earlier pages are still returned together
// with the error.
func (d *Discovery) Discover(ctx context.Context, q DiscoveryQuery) ([]domain.Candidate, error) {
	pageSize := d.jitterPageSize(q.PageSize)
	pages := max(q.Pages, 1)
	query := q.String()

	d.logger.Debug("discovering candidates", "query", query, "per_page", pageSize, "pages", pages)

	seen := make(map[string]struct{})
	var candidates []domain.Candidate
	var searchErr error

	for page := 1; page <= pages; page++ {
		results, err := d.searcher.SearchRepositories(ctx, query, pageSize, page)
		if err != nil {
			searchErr = fmt.Errorf("page %d: %w", page, err)
			break
		}

		for _, c := range results {
			if _, dup := seen[c.FullName]; dup {
				continue
			}
			seen[c.FullName] = struct{}{}
			candidates = append(candidates, c)
		}

		if len(results) < pageSize {
			break
		}
	}

	d.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	if searchErr != nil {
		return candidates, searchErr
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return candidates, nil
}

// jitterPageSize spreads size by ±10% and clamps it to [1, MaxPageSize].
func (d *Discovery) jitterPageSize(size int) int {
	spread := int(float64(size) * pageSizeJitter)
	if spread > 0 {
		size += d.rng.IntN(2*spread+1) - spread
	}
	return min(max(size, 1), api.MaxPageSize)
}
