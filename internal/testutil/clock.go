package testutil

import "sync"

// StepClock is a deterministic timestamp source for captured entries.
//
// Each call to Now returns the previous timestamp plus step, starting at
// start+step, so golden log snapshots do not depend on wall time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	now   int64
}

// NewStepClock creates a clock whose first Now() returns start+step.
// A non-positive step is treated as 1.
func NewStepClock(start, step int64) *StepClock {
	if step <= 0 {
		step = 1
	}
	return &StepClock{start: start, step: step, now: start}
}

// Now advances the clock and returns the new timestamp.
func (c *StepClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the last timestamp handed out without advancing.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
