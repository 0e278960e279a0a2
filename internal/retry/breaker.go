package retry

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// Breaker wraps gobreaker's per-resource state machine (closed → open →
// half-open) per spec.md §4.3. gobreaker owns its own cooldown timer
// internally and has no clock-injection seam, so Breaker's Execute
// timing is real wall-clock time regardless of the clock a caller's
// other retry primitives share; tests that need determinism exercise
// ReadyToTrip and state transitions with a short real Timeout instead of
// advancing a fake clock.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// BreakerConfig names the threshold and cooldown for one resource.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Cooldown         time.Duration
}

// NewBreaker builds a Breaker that trips to open after
// cfg.FailureThreshold consecutive failures and stays open for
// cfg.Cooldown before allowing a single half-open probe.
func NewBreaker(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs f through the breaker. When the breaker is open it fails
// fast with vaulterrors.ErrBreakerOpen, which the shared taxonomy
// classifies as transient (retryable once the cooldown has elapsed).
func (b *Breaker) Execute(f func() (any, error)) (any, error) {
	result, err := b.cb.Execute(f)
	if err == gobreaker.ErrOpenState {
		return nil, fmt.Errorf("%w: resource=%s", vaulterrors.ErrBreakerOpen, b.cb.Name())
	}
	return result, err
}

// State returns the breaker's current state for logging/metrics.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Registry holds one named Breaker per external resource (email, social
// platforms, accounting system, ...), created lazily on first use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      func(name string) BreakerConfig
}

// NewRegistry returns a Registry that builds a breaker for a previously
// unseen resource name using cfg.
func NewRegistry(cfg func(name string) BreakerConfig) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// For returns the Breaker for name, constructing it on first access.
func (r *Registry) For(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(r.cfg(name))
	r.breakers[name] = b
	return b
}
