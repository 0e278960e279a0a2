package retry

import (
	"fmt"
	"sync"
	"time"

	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// TokenBucket is a per-channel rate limiter: capacity C, refilling R
// tokens every interval (spec.md §4.3). Configured channels per
// spec.md §4.4: email (10/hour), social_post (3/hour), payment (3/day).
//
// golang.org/x/time/rate was deliberately not used here: its Limiter
// calls time.Now() internally and has no clock-injection seam, which
// would break the requirement that backoff, breaker, and bucket share
// one advanceable clock in tests (see SPEC_FULL.md §5).
type TokenBucket struct {
	capacity float64
	refill   float64 // tokens granted per interval
	interval time.Duration
	clk      clock.Clock

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewTokenBucket returns a bucket starting full, refilling `refill`
// tokens every `interval`, capped at `capacity`.
func NewTokenBucket(capacity, refill float64, interval time.Duration, clk clock.Clock) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		refill:   refill,
		interval: interval,
		clk:      clk,
		tokens:   capacity,
		last:     clk.Now(),
	}
}

// refillLocked advances tokens by elapsed whole-interval multiples since
// the last observation. Must be called with mu held.
func (b *TokenBucket) refillLocked() {
	now := b.clk.Now()
	if b.interval <= 0 {
		b.tokens = b.capacity
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	intervals := elapsed / b.interval
	if intervals < 1 {
		return
	}
	b.tokens += float64(intervals) * b.refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = b.last.Add(intervals * b.interval)
}

// Acquire consumes one token if available and returns true, or returns
// false immediately without consuming anything.
func (b *TokenBucket) Acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// TryAcquire is Acquire expressed as the shared error taxonomy, for
// callers that want a uniform error-returning signature alongside
// Backoff.Run and Breaker.Execute.
func (b *TokenBucket) TryAcquire(channel string) error {
	if b.Acquire() {
		return nil
	}
	return fmt.Errorf("%w: channel=%s", vaulterrors.ErrBucketEmpty, channel)
}

// Available reports the current token count without consuming one,
// useful for dashboards and tests.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}
