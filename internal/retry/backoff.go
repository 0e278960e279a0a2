// Package retry implements the three orthogonal, composable retry
// primitives spec.md §4.3 requires: exponential backoff with full
// jitter, a per-resource circuit breaker, and a per-channel token-bucket
// rate limiter. All three accept a pkg/clock.Clock so a test can drive
// them through one shared, advanceable timeline.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// Backoff computes exponential-with-full-jitter delays and drives a retry
// loop around a unit of work, per spec.md §4.3: "wait base · 2^(attempt-1)
// with full jitter, up to max_attempts. Non-transient failures (permanent:
// auth, schema, policy) propagate immediately."
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int

	// Rand supplies jitter. Nil defaults to the package-level source,
	// which is fine in production; tests inject a seeded *rand.Rand for
	// reproducible delay assertions.
	Rand *rand.Rand
}

// NewBackoff returns a Backoff with the given parameters and no injected
// Rand (production default).
func NewBackoff(base, max time.Duration, maxAttempts int) Backoff {
	return Backoff{Base: base, Max: max, MaxAttempts: maxAttempts}
}

// Delay returns the full-jitter delay for the given 1-indexed attempt
// number: a uniform random duration in [0, min(base*2^(attempt-1), max)].
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ceiling := float64(b.Max)
	raw := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if raw > ceiling || math.IsInf(raw, 1) {
		raw = ceiling
	}
	if raw <= 0 {
		return 0
	}
	r := b.Rand
	if r == nil {
		r = globalRand
	}
	return time.Duration(r.Int63n(int64(raw) + 1))
}

// Run executes f, retrying on transient failures (per
// vaulterrors.Classify) up to MaxAttempts, sleeping Delay(attempt)
// between tries. Any non-transient error propagates immediately without
// consuming a retry. Run sleeps real wall-clock time between attempts —
// the clock abstraction governs the breaker and bucket's notion of "now",
// not the actual sleep duration, since a test asserting retry behavior
// drives Backoff.Delay directly rather than waiting out real retries.
func (b Backoff) Run(ctx context.Context, f func() error) error {
	var lastErr error
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		if vaulterrors.Classify(err) != vaulterrors.KindTransient {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}
	return lastErr
}

var globalRand = rand.New(rand.NewSource(1))
