package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source. Inject its Now method wherever
// production code takes a now func to make schedule and liveness arithmetic
// deterministic.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock pinned to the given instant, or to
// 2025-01-01 00:00:00 UTC when none is given.
func NewClock(now ...time.Time) *Clock {
	c := &Clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	if len(now) > 0 {
		c.now = now[0]
	}
	return c
}

// Now returns the clock's current instant. Time never passes on its own.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
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
