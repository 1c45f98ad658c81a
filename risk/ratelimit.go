package risk

import (
	"sync"
	"time"
)

type rateWindow struct {
	count       int
	windowStart int64 // unix second the count belongs to
}

// RateWindowStore counts accepted orders per team within the current wall
// second. The count is valid only while floor(now) equals the recorded
// window start; reads never mutate.
type RateWindowStore struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	clock   func() time.Time
}

// NewRateWindowStore creates an empty store
func NewRateWindowStore() *RateWindowStore {
	return &RateWindowStore{
		windows: make(map[string]rateWindow),
		clock:   time.Now,
	}
}

// WithClock overrides the store clock (tests)
func (s *RateWindowStore) WithClock(clock func() time.Time) *RateWindowStore {
	s.clock = clock
	return s
}

// Count returns the team's accepted-order count for the current second, or
// zero if the recorded window is stale.
func (s *RateWindowStore) Count(teamID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().Unix()
	w, ok := s.windows[teamID]
	if !ok || w.windowStart != now {
		return 0
	}
	return w.count
}

// Increment records one accepted order for the team in the current second
func (s *RateWindowStore) Increment(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().Unix()
	w, ok := s.windows[teamID]
	if ok && w.windowStart == now {
		w.count++
		s.windows[teamID] = w
		return
	}
	s.windows[teamID] = rateWindow{count: 1, windowStart: now}
}
