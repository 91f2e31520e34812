package nav

import "sync"

// State guards one NavInfo. Writers hold the lock for a whole sentence so a
// reader never sees half of one applied.
type State struct {
	mu   sync.RWMutex
	info NavInfo
}

func NewState(trafficCapacity int) *State {
	return &State{info: NewNavInfo(trafficCapacity)}
}

// Update runs fn with exclusive access to the record.
func (s *State) Update(fn func(info *NavInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.info)
}

// Read runs fn with shared access. fn must not modify the record.
func (s *State) Read(fn func(info *NavInfo)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.info)
}

// Snapshot returns a deep copy safe to use without the lock.
func (s *State) Snapshot() NavInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Clone()
}
