package domain

import "time"

// Transition records a terminal state change of a tracked engagement.
type Transition struct {
	Kind       string // TransitionFollowed or TransitionExpired
	Record     TrackedEngagement
	OccurredAt time.Time
}
