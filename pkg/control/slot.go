package control

import "sync"

// Slot is a single-writer latest-value cell. A write overwrites whatever the
// reader has not consumed yet; nothing is queued and readers never block on
// the writer. It is the only sharing primitive between the input producers
// (joystick, serial receive) and the control goroutine.
type Slot[T any] struct {
	mu  sync.Mutex
	val T
	set bool
}

// Put stores v, replacing any previous value.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	s.val = v
	s.set = true
	s.mu.Unlock()
}

// Latest returns the most recent value and whether one has ever been stored.
func (s *Slot[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.set
}
