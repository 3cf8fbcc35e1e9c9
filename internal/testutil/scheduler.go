package testutil

import "sync"

// ManualScheduler is a host.Scheduler that never runs anything on its own.
//
// Tests decide when the host becomes ready (Ready) and when each scheduled
// callback runs (Step), so a tick-driven engine can be single-stepped with
// identical results on every run.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run on
// the goroutine that calls Ready or Step, outside the internal mutex.
type ManualScheduler struct {
	mu      sync.Mutex
	ready   bool
	onReady []func()
	pending []func()
}

// NewManualScheduler creates a scheduler whose host is not ready yet.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule queues fn until the next Step.
func (s *ManualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, fn)
}

// OnReady runs fn at Ready, or queues it for the next Step when the host is
// already ready.
func (s *ManualScheduler) OnReady(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		s.pending = append(s.pending, fn)
		return
	}
	s.onReady = append(s.onReady, fn)
}

// Ready marks the host ready and runs the held ready callbacks in
// registration order. Calling Ready again has no effect.
func (s *ManualScheduler) Ready() {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	fns := s.onReady
	s.onReady = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Step runs every callback scheduled before the call, in order. Callbacks
// scheduled while stepping wait for the next Step.
//
// Returns the number of callbacks run.
func (s *ManualScheduler) Step() int {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Pending returns the number of callbacks waiting for Step.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
