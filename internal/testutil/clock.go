package testutil

import (
	"sync"
	"time"
)

// Day is one calendar day. Maintenance ages are measured in whole days.
const Day = 24 * time.Hour

// Clock is a settable time source. It satisfies maintenance.Clock and can
// be passed wherever a func() time.Time is expected via its Now method.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock at now, or at 2026-01-01 00:00 UTC when no time
// is given.
func NewClock(now ...time.Time) *Clock {
	c := &Clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	if len(now) > 0 {
		c.now = now[0]
	}
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// AdvanceDays moves the clock forward by n days. Thirty days count as one
// maintenance month.
func (c *Clock) AdvanceDays(n int) {
	c.Advance(time.Duration(n) * Day)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// DaysAgo returns the time n days before the clock's current time.
func (c *Clock) DaysAgo(n int) time.Time {
	return c.Now().Add(-time.Duration(n) * Day)
}
