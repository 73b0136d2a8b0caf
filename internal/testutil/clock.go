package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is where a DeterministicClock starts unless told otherwise.
var DefaultEpoch = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

// DefaultTick is how far a DeterministicClock advances per reading.
const DefaultTick = 10 * time.Millisecond

// DeterministicClock is a thread-safe clock for tests. Every call to Now
// advances it by a fixed tick, so durations measured between two readings
// are predictable and golden output is byte-stable.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	tick  time.Duration
	n     int64
}

// NewDeterministicClock creates a clock at DefaultEpoch advancing by
// DefaultTick. The first call to Now returns DefaultEpoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, DefaultTick)
}

// NewDeterministicClockAt creates a clock starting at start.
func NewDeterministicClockAt(start time.Time, tick time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, tick: tick}
}

// Now returns the current reading and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.tick)
	c.n++
	return t
}

// Readings returns how many times Now has been called.
func (c *DeterministicClock) Readings() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
