// Package telemetry keeps the latest known value for every sensor and
// actuator feed.
package telemetry

import (
	"sync"

	"github.com/mohae/deepcopy"
)

// Store is a thread-safe latest-value cache keyed by telemetry name. It is
// written by the bridge receive loop and read by the flight controller and
// diagnostics. Last write wins; there is no history.
type Store struct {
	mu   sync.Mutex
	data map[string]any
}

func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Update stores value under key, replacing any previous value.
func (s *Store) Update(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get returns the latest value for key, or def if the key has never been
// written. A missing key is not an error.
func (s *Store) Get(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

// Snapshot returns an independent point-in-time copy of the whole store.
// Later updates never show through, and mutating the copy never touches the
// store.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepcopy.Copy(s.data).(map[string]any)
}
