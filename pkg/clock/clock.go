// Package clock provides a deterministic clock abstraction for the vault
// core.
//
// Core logic packages must not call time.Now() directly. Instead inject a
// Clock so that backoff, circuit breakers, and rate limiters can share one
// clock and tests can advance it deterministically (see spec.md §4.3: "All
// three share a single clock abstraction so tests can advance time
// deterministically").
//
// Usage:
//
//	// In production code
//	type Service struct {
//	    clock clock.Clock
//	}
//
//	func NewService(c clock.Clock) *Service {
//	    return &Service{clock: c}
//	}
//
//	// In tests
//	fake := clock.NewMutable(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
//	svc := NewService(fake)
//	fake.Advance(90 * time.Second)
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time.
// Use only at application entry points (cmd/*).
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns a fixed time.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed time.
func (c FixedClock) Now() time.Time {
	return c.T
}

// FuncClock wraps a function as a Clock.
type FuncClock func() time.Time

// Now calls the wrapped function.
func (f FuncClock) Now() time.Time {
	return f()
}

// MutableClock is a Clock whose time a test can advance between assertions.
// Needed by internal/retry, whose three wrappers (backoff, breaker, bucket)
// share one clock so a test can drive all of them through the same
// rolling window without sleeping real wall-clock time.
type MutableClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMutable returns a MutableClock starting at t.
func NewMutable(t time.Time) *MutableClock {
	return &MutableClock{now: t}
}

// Now returns the current fake time.
func (c *MutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake clock forward by d.
func (c *MutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the fake clock to t.
func (c *MutableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// NewReal returns a Clock that uses the real system time.
// ONLY use at application entry points (cmd/*).
func NewReal() Clock {
	return RealClock{}
}

// NewFixed returns a Clock that always returns the given time.
func NewFixed(t time.Time) Clock {
	return FixedClock{T: t}
}

// NewFunc returns a Clock backed by a custom function.
func NewFunc(f func() time.Time) Clock {
	return FuncClock(f)
}

// Verify interface compliance at compile time.
var (
	_ Clock = RealClock{}
	_ Clock = FixedClock{}
	_ Clock = FuncClock(nil)
	_ Clock = (*MutableClock)(nil)
)
