package memory

import "time"

// SetNow overrides the store clock so tests can place transactions on
// specific calendar dates.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}
