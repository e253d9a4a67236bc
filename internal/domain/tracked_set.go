package domain

import "sync"

// TrackedSet is the ordered collection of pending engagements.
// The scheduler is its only writer; the mutex lets the status endpoint
// read it while a cycle is running.
type TrackedSet struct {
	mu      sync.RWMutex
	records []TrackedEngagement
}

// NewTrackedSet creates a set holding the given records in order.
func NewTrackedSet(records ...TrackedEngagement) *TrackedSet {
	s := &TrackedSet{}
	s.records = append(s.records, records...)
	return s
}

// Add appends a record. Duplicates are allowed and tracked independently.
func (s *TrackedSet) Add(record TrackedEngagement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// Len returns the number of pending records.
func (s *TrackedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of the records. Positions in the returned
// slice can later be passed to RemovePositions.
func (s *TrackedSet) Snapshot() []TrackedEngagement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackedEngagement, len(s.records))
	copy(out, s.records)
	return out
}

// RemovePositions deletes the records at the given snapshot positions.
// Records appended after the snapshot was taken are kept.
// Returns the number of records removed.
func (s *TrackedSet) RemovePositions(positions map[int]struct{}) int {
	if len(positions) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for i, record := range s.records {
		if _, drop := positions[i]; drop {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	// Clear the tail so dropped records are not retained by the backing array.
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = TrackedEngagement{}
	}
	s.records = kept
	return removed
}

// Replace swaps the whole contents, used when loading from storage.
func (s *TrackedSet) Replace(records []TrackedEngagement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]TrackedEngagement(nil), records...)
}
