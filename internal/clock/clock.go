// Package clock provides board.Clock implementations.
package clock

import (
	"sync"
	"time"
)

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a manually advanced clock for tests and replays.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed returns a Fixed clock set to now.
func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now}
}

// Now returns the clock's current time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
