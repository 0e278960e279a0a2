package orchestrator

import (
	"sync"
	"time"

	"github.com/vaultwork/orchestrator/pkg/clock"
)

// FileState is one file's position in the orchestrator's own state
// machine, distinct from its vault Stage (spec.md §4.6: "observed →
// accepted → dispatched → (terminal | deferred)").
type FileState string

const (
	StateObserved   FileState = "observed"
	StateAccepted   FileState = "accepted"
	StateDispatched FileState = "dispatched"
	StateTerminal   FileState = "terminal"
	StateDeferred   FileState = "deferred"
)

// StateTracker remembers, per stem, the orchestrator's last-known state
// and — for deferred files — the cooldown before the next retry is
// attempted. Modeled on the teacher's LoopStatus/StepStatus tracking
// style, re-themed from loop-step states to file-dispatch states.
type StateTracker struct {
	mu       sync.Mutex
	clk      clock.Clock
	cooldown time.Duration
	entries  map[string]trackedEntry
}

type trackedEntry struct {
	state        FileState
	deferredUntil time.Time
}

// NewStateTracker returns a StateTracker whose deferred files are not
// retried until cooldown has elapsed.
func NewStateTracker(clk clock.Clock, cooldown time.Duration) *StateTracker {
	return &StateTracker{clk: clk, cooldown: cooldown, entries: make(map[string]trackedEntry)}
}

// Transition records stem's new state.
func (t *StateTracker) Transition(stem string, state FileState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[stem]
	e.state = state
	if state == StateDeferred {
		e.deferredUntil = t.clk.Now().Add(t.cooldown)
	}
	t.entries[stem] = e
}

// State returns stem's last-known state, or "" if never observed.
func (t *StateTracker) State(stem string) FileState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[stem].state
}

// ShouldSkip reports whether stem is a deferred file still within its
// cooldown window and should be skipped on this scan.
func (t *StateTracker) ShouldSkip(stem string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[stem]
	if !ok || e.state != StateDeferred {
		return false
	}
	return t.clk.Now().Before(e.deferredUntil)
}

// Forget removes a stem's tracked state, used once a file reaches a
// terminal vault stage and leaves the orchestrator's working set.
func (t *StateTracker) Forget(stem string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, stem)
}
