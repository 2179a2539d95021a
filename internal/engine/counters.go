package engine

import (
	"sync"
	"time"
)

// CounterState is the windowed counter for one tracking key. Count is
// monotonic for the life of the run and alerted keys only grow: each
// alert key fires at most once per counter.
type CounterState struct {
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
	alerted   map[string]struct{}
}

// CounterStore keys counters by tracking key
// (user | time bucket | event type | optional field value). State is
// run-local only; nothing is persisted across runs.
type CounterStore struct {
	mu       sync.Mutex
	counters map[string]*CounterState
}

func NewCounterStore() *CounterStore {
	return &CounterStore{counters: make(map[string]*CounterState)}
}

// Increment bumps the counter for key, creating it lazily, and
// returns the new count.
func (s *CounterStore) Increment(key string, ts time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		c = &CounterState{FirstSeen: ts, alerted: make(map[string]struct{})}
		s.counters[key] = c
	}
	c.Count++
	if ts.After(c.LastSeen) {
		c.LastSeen = ts
	}
	if ts.Before(c.FirstSeen) {
		c.FirstSeen = ts
	}
	return c.Count
}

// MarkAlerted records that alertKey has fired for key. It returns
// false when the alert key was already marked, enforcing alert-once.
func (s *CounterStore) MarkAlerted(key, alertKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		c = &CounterState{alerted: make(map[string]struct{})}
		s.counters[key] = c
	}
	if _, fired := c.alerted[alertKey]; fired {
		return false
	}
	c.alerted[alertKey] = struct{}{}
	return true
}

// Get returns a copy of the counter for key.
func (s *CounterStore) Get(key string) (CounterState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		return CounterState{}, false
	}
	return CounterState{Count: c.Count, FirstSeen: c.FirstSeen, LastSeen: c.LastSeen}, true
}

func (s *CounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *CounterStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]*CounterState)
}
