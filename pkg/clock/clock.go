package clock

import (
	"sync"
	"time"
)

// IClock supplies the current time for expiration checks
type IClock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (*SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock returns a settable instant. Intended for tests and simulations.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// NewFixedClockUnix is a convenience for unix-second timestamps
func NewFixedClockUnix(seconds int64) *FixedClock {
	return NewFixedClock(time.Unix(seconds, 0))
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
