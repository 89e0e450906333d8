// Package clock supplies wall-clock time to the services.
//
// The core never calls time.Now directly: matching and settlement take
// occurred_at from the request, and only the search deadline and the
// sweeper read a Clock. Tests and the scenario harness use Manual so runs
// are reproducible.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System reads the host clock, always in UTC.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a clock frozen at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// Now returns the frozen time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed; callers that
// model monotonic time should use Advance.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Stepping returns a new value on every call, advancing by step each time.
// It lets tests drive deadline checks without sleeping.
type Stepping struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepping creates a clock starting at t that advances by step per read.
func NewStepping(t time.Time, step time.Duration) *Stepping {
	return &Stepping{now: t.UTC(), step: step}
}

// Now returns the current value, then advances.
func (s *Stepping) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now
	s.now = s.now.Add(s.step)
	return t
}
