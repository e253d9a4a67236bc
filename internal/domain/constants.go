package domain

// DateLayout is the on-disk and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Transition kinds produced by a reciprocity sweep.
const (
	// TransitionFollowed means the owner followed back and was followed in return.
	TransitionFollowed = "followed"
	// TransitionExpired means the grace period passed without reciprocity.
	TransitionExpired = "expired"
)
