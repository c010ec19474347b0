package client

import "sync"

// slot holds a single-owner resource. Callers take the value out for the
// duration of an operation and restore it afterwards, so the mutex is
// never held across I/O and two operations can never share the value.
type slot[T any] struct {
	mu     sync.Mutex
	v      T
	ok     bool
	sealed bool
}

func newSlot[T any](v T) *slot[T] {
	return &slot[T]{v: v, ok: true}
}

// take removes the value. It reports false when the value is already
// out with another operation or the slot was sealed.
func (s *slot[T]) take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.ok {
		return zero, false
	}

	v := s.v
	s.v, s.ok = zero, false

	return v, true
}

// restore puts v back. It reports false, leaving the slot empty, when the
// slot was sealed while v was out; the caller then owns v's cleanup.
func (s *slot[T]) restore(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return false
	}
	s.v, s.ok = v, true

	return true
}

// seal permanently empties the slot, returning the value if it was present.
func (s *slot[T]) seal() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	v, ok := s.v, s.ok
	s.v, s.ok, s.sealed = zero, false, true

	return v, ok
}
