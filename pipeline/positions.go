package pipeline

import (
	"sync"
)

// PositionStore holds per-team, per-instrument signed positions. All access
// goes through one mutex; snapshots are independent copies.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]map[string]int64 // teamID -> instrument -> position
}

// NewPositionStore creates an empty store
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]map[string]int64),
	}
}

// Initialize ensures a team entry exists. Idempotent.
func (s *PositionStore) Initialize(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[teamID]; !ok {
		s.positions[teamID] = make(map[string]int64)
	}
}

// Update adds delta to a team's position in an instrument, creating missing
// entries at zero first.
func (s *PositionStore) Update(teamID, instrumentID string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.positions[teamID]
	if !ok {
		team = make(map[string]int64)
		s.positions[teamID] = team
	}
	team[instrumentID] += delta
}

// Get returns a team's position in one instrument
func (s *PositionStore) Get(teamID, instrumentID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[teamID][instrumentID]
}

// GetAll returns an independent copy of a team's positions
func (s *PositionStore) GetAll(teamID string) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64)
	for inst, pos := range s.positions[teamID] {
		out[inst] = pos
	}
	return out
}

// TotalAbsolute returns the sum of position magnitudes for a team
func (s *PositionStore) TotalAbsolute(teamID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, pos := range s.positions[teamID] {
		if pos < 0 {
			total -= pos
		} else {
			total += pos
		}
	}
	return total
}
