// Package async provides the completion signal shared by the scheduler,
// body producers and the multipart encoder.
package async

import (
	"context"
	"sync"
)

// Signal reports the outcome of an asynchronous operation exactly once.
//
// A Signal that is never resolved is a valid state: producers that are
// stopped deliberately leave their signal pending forever.
type Signal struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	err       error
	callbacks []func(error)
}

// NewSignal creates an unresolved signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Resolved returns a signal that has already completed with err.
func Resolved(err error) *Signal {
	s := NewSignal()
	s.Resolve(err)
	return s
}

// Resolve completes the signal. Only the first call has an effect; it
// reports whether this call resolved the signal. Callbacks run on the
// calling goroutine, in registration order, after the lock is released.
func (s *Signal) Resolve(err error) bool {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return false
	}
	s.resolved = true
	s.err = err
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.done)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(err)
	}
	return true
}

// OnDone registers fn to run when the signal resolves. If it already has,
// fn runs immediately on the calling goroutine.
func (s *Signal) OnDone(fn func(error)) {
	s.mu.Lock()
	if s.resolved {
		err := s.err
		s.mu.Unlock()
		fn(err)
		return
	}
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// Done returns a channel closed once the signal resolves.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// IsResolved reports whether the signal has completed.
func (s *Signal) IsResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Err returns the resolution error, or nil while pending.
func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the signal resolves or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
