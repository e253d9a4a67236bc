package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TrackedEngagement is one starred repository awaiting reciprocity.
// Records are created only after a successful star and never mutated.
type TrackedEngagement struct {
	OwnerLogin         string
	StarredOn          time.Time // calendar date, UTC midnight
	RepositoryFullName string    // "owner/name"
}

// NewTrackedEngagement builds a record for a repository starred on the given day.
func NewTrackedEngagement(owner, fullName string, starredAt time.Time) TrackedEngagement {
	return TrackedEngagement{
		OwnerLogin:         owner,
		StarredOn:          DateOf(starredAt),
		RepositoryFullName: fullName,
	}
}

// AgeDays returns the number of whole calendar days between the star and today.
func (e TrackedEngagement) AgeDays(today time.Time) int {
	return DaysBetween(e.StarredOn, today)
}

// IsExpired reports whether the record has outlived the grace period.
// Expiry is strict: a record starred on day D with a grace of 3 days
// expires on D+4, not D+3.
func (e TrackedEngagement) IsExpired(today time.Time, gracePeriodDays int) bool {
	return e.AgeDays(today) > gracePeriodDays
}

// Validate checks the record invariants.
func (e TrackedEngagement) Validate() error {
	if e.OwnerLogin == "" {
		return errors.New("owner login is required")
	}
	if !strings.Contains(e.RepositoryFullName, "/") {
		return fmt.Errorf("repository %q is not in owner/name form", e.RepositoryFullName)
	}
	if e.StarredOn.IsZero() {
		return errors.New("starred date is required")
	}
	return nil
}

// MarshalJSON encodes the record as [owner, "YYYY-MM-DD", "owner/name"].
func (e TrackedEngagement) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{
		e.OwnerLogin,
		e.StarredOn.Format(DateLayout),
		e.RepositoryFullName,
	})
}

// UnmarshalJSON decodes the three-element array form.
func (e *TrackedEngagement) UnmarshalJSON(data []byte) error {
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("tracked engagement: %w", err)
	}
	if len(fields) != 3 {
		return fmt.Errorf("tracked engagement: expected 3 fields, got %d", len(fields))
	}

	starredOn, err := ParseDate(fields[1])
	if err != nil {
		return fmt.Errorf("tracked engagement: %w", err)
	}

	record := TrackedEngagement{
		OwnerLogin:         fields[0],
		StarredOn:          starredOn,
		RepositoryFullName: fields[2],
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("tracked engagement: %w", err)
	}

	*e = record
	return nil
}

func (e TrackedEngagement) String() string {
	return fmt.Sprintf("%s (%s, starred %s)", e.RepositoryFullName, e.OwnerLogin, e.StarredOn.Format(DateLayout))
}

// DateOf truncates t to its calendar date. The year, month and day are
// taken in t's own location; the result is midnight UTC so that
// differences between dates are exact multiples of 24 hours.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from from to to.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
