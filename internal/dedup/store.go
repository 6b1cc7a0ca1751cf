package dedup

import (
	"sync"
	"time"
)

// DefaultRetention is how long a sent fingerprint suppresses repeats
const DefaultRetention = 4 * time.Hour

// Store remembers which fingerprints were already dispatched and when.
// Entries are never refreshed: a product still listed after the retention
// window is alerted again.
type Store struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{entries: make(map[string]time.Time)}
}

// Seen reports whether fp has an entry
func (s *Store) Seen(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[fp]
	return ok
}

// Record stores fp with sentAt. An existing entry is left untouched.
func (s *Store) Record(fp string, sentAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[fp]; ok {
		return
	}
	s.entries[fp] = sentAt
}

// EvictOlderThan removes entries whose age exceeds retention and returns how
// many were removed
func (s *Store) EvictOlderThan(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, sentAt := range s.entries {
		if now.Sub(sentAt) > retention {
			delete(s.entries, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked fingerprints
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
