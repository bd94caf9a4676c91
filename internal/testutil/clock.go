package testutil

import (
	"sync"
	"time"
)

// EventClock hands out the timestamps that reconciliation stamps on events.
// It only moves when a test steps it, so passes separated by Advance are
// guaranteed distinct recorded_at values. Safe for concurrent use.
type EventClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewEventClock returns a clock pinned to 2024-03-01 12:00:00 UTC.
func NewEventClock() *EventClock {
	return &EventClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *EventClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Unix returns the current time in Unix seconds, the form events carry.
func (c *EventClock) Unix() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Unix()
}

// Advance moves the clock forward by d and returns the Unix timestamp the
// next recorded event will carry.
func (c *EventClock) Advance(d time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now.Unix()
}
