package dashboard

import (
	"sort"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// Status is a point-in-time view of the tracked set.
type Status struct {
	GeneratedAt     time.Time     `json:"generated_at"`
	GracePeriodDays int           `json:"grace_period_days"`
	Pending         int           `json:"pending"`
	Entries         []StatusEntry `json:"entries"`
}

// StatusEntry describes one pending engagement.
type StatusEntry struct {
	Repository string `json:"repository"`
	Owner      string `json:"owner"`
	StarredOn  string `json:"starred_on"`
	AgeDays    int    `json:"age_days"`
	// DaysLeft is the number of sweeps before expiry; zero or less means
	// the next negative follow check reverses the star.
	DaysLeft int `json:"days_left"`
}

// BuildStatus summarises records as of now, oldest first.
func BuildStatus(records []domain.TrackedEngagement, now time.Time, gracePeriodDays int) Status {
	today := domain.DateOf(now)
	entries := make([]StatusEntry, 0, len(records))
	for _, r := range records {
		age := r.AgeDays(today)
		entries = append(entries, StatusEntry{
			Repository: r.RepositoryFullName,
			Owner:      r.OwnerLogin,
			StarredOn:  r.StarredOn.Format(domain.DateLayout),
			AgeDays:    age,
			DaysLeft:   gracePeriodDays + 1 - age,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AgeDays > entries[j].AgeDays
	})

	return Status{
		GeneratedAt:     now.UTC(),
		GracePeriodDays: gracePeriodDays,
		Pending:         len(entries),
		Entries:         entries,
	}
}
