package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock. Time only moves when a caller waits on
// After (the clock jumps straight to the deadline) or calls Advance, so
// polling loops run to completion without real sleeping.
//
// Fake is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration
}

// NewFake returns a Fake starting at initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// After advances the clock by d and returns a channel that has already
// fired. Every call is recorded for Sleeps.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d > 0 {
		f.current = f.current.Add(d)
	}
	f.sleeps = append(f.sleeps, d)

	ch := make(chan time.Time, 1)
	ch <- f.current
	return ch
}

// Advance moves the clock forward by d without recording a sleep. Useful to
// simulate time spent inside a probe.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Sleeps returns a copy of every duration waited on so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// Elapsed returns the time passed since initial.
func (f *Fake) Elapsed(initial time.Time) time.Duration {
	return f.Now().Sub(initial)
}
