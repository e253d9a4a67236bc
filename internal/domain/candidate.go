package domain

import "time"

// Candidate is a repository returned by discovery and not yet acted upon.
type Candidate struct {
	FullName   string
	Name       string
	OwnerLogin string
	Stars      int
	PushedAt   time.Time
	HTMLURL    string
}
