package dap

import (
	"slices"
	"sync"
)

// PlaceholderThreadID is the id a single-threaded frontend uses to mean "the" thread
const PlaceholderThreadID = 1

// ThreadSet is the set of thread ids the adapter currently reports as stopped.
// Ids keep the order in which they were first reported.
type ThreadSet struct {
	mu  sync.RWMutex
	ids []int
}

// NewThreadSet creates an empty set
func NewThreadSet() *ThreadSet {
	return &ThreadSet{}
}

// Add records id as stopped
func (s *ThreadSet) Add(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.ids, id) {
		s.ids = append(s.ids, id)
	}
}

// Remove records id as running again
func (s *ThreadSet) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = slices.DeleteFunc(s.ids, func(v int) bool { return v == id })
}

// Clear marks every thread as running
func (s *ThreadSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
}

// Contains reports whether id is stopped
func (s *ThreadSet) Contains(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.ids, id)
}

// Len returns the number of stopped threads
func (s *ThreadSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns a copy of the stopped thread ids in insertion order
func (s *ThreadSet) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// Reconcile maps a frontend thread id onto one the adapter will accept.
//
// With nothing stopped the id is forwarded as is. The placeholder id always
// becomes the first stopped thread. Any other id that is not stopped is also
// replaced by the first stopped thread, and substituted reports that case.
func (s *ThreadSet) Reconcile(requested int) (id int, substituted bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case len(s.ids) == 0:
		return requested, false
	case requested == PlaceholderThreadID:
		return s.ids[0], false
	case slices.Contains(s.ids, requested):
		return requested, false
	default:
		return s.ids[0], true
	}
}
