package domain

// OwnerProfile holds the public counters of a repository owner.
type OwnerProfile struct {
	Login     string
	Name      string
	Followers int
	Following int
	HTMLURL   string
}

// FollowsBackLikely reports whether the owner follows at least as many
// accounts as follow them, the heuristic used to pick reciprocating owners.
func (p OwnerProfile) FollowsBackLikely() bool {
	return p.Following >= p.Followers
}
