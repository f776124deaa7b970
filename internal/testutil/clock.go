package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe manual clock for tests.
//
// Ledger boundaries and the derived-state engine take a clock function so
// tests can pin wall time and advance it explicitly. The same test
// scenario run twice with the same Clock produces identical timestamps,
// which keeps golden snapshots stable.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock pinned at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current pinned instant. Pass the method value
// (clock.Now) wherever a clock function is accepted.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative values are refused by
// doing nothing: test time never runs backwards.
func (c *Clock) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to an absolute instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
