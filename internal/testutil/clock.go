package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports.
var Epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// DeterministicClock is a thread-safe stepping clock for tests.
//
// Each call to Now returns the previous instant plus Step, so measured
// runtimes and created_at stamps are predictable. It can be reset for
// test reuse.
type DeterministicClock struct {
	mu   sync.Mutex
	Step time.Duration
	n    int64
}

// NewDeterministicClock creates a clock whose first Now() is Epoch.
func NewDeterministicClock(step time.Duration) *DeterministicClock {
	return &DeterministicClock{Step: step}
}

// Now returns Epoch + n*Step and advances n.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.n) * c.Step)
	c.n++
	return t
}

// Calls returns how many times Now has been called.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock so the next Now() returns Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
