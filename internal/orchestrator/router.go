package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/adapter"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// Config parameterizes a Router.
type Config struct {
	PollInterval time.Duration // polling fallback cadence, spec.md §4.6: "≤ 5s"
	GraceWindow  time.Duration // shutdown grace window, spec.md §4.6 step 7
	Cooldown     time.Duration // deferred-file revisit cooldown
}

// Router watches Approved/, classifies, policy-gates, and dispatches to
// an adapter, per spec.md §4.6.
type Router struct {
	v        *vault.Vault
	registry *adapter.Registry
	policy   *PolicyGate
	state    *StateTracker
	clk      clock.Clock
	log      *zap.Logger
	cfg      Config

	inflight sync.WaitGroup
}

// New builds a Router.
func New(v *vault.Vault, registry *adapter.Registry, policy *PolicyGate, clk clock.Clock, log *zap.Logger, cfg Config) *Router {
	if cfg.PollInterval <= 0 || cfg.PollInterval > 5*time.Second {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Router{
		v: v, registry: registry, policy: policy,
		state: NewStateTracker(clk, cfg.Cooldown),
		clk:   clk, log: log, cfg: cfg,
	}
}

// Run watches Approved/ via fsnotify with a polling fallback until ctx is
// cancelled, then waits up to GraceWindow for in-flight dispatches to
// finish before returning. Files still in flight past the grace window
// remain in Approved/ to be retried on next start (spec.md §4.6 step 7).
func (r *Router) Run(ctx context.Context) error {
	approvedDir := r.v.Layout.StageDir(vault.Approved)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("orchestrator: create fs watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(approvedDir); err != nil {
		r.log.Warn("orchestrator: native watch unavailable, relying on polling fallback", zap.Error(err))
	}

	r.scan(ctx)

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			r.waitGrace()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				r.scan(ctx)
			}

		case err, ok := <-fw.Errors:
			if ok {
				r.log.Error("orchestrator: fs watch error", zap.Error(err))
			}

		case <-poll.C:
			r.scan(ctx)
		}
	}
}

func (r *Router) waitGrace() {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.cfg.GraceWindow):
		r.log.Warn("orchestrator: grace window elapsed with dispatches still in flight")
	}
}

// ScanOnce runs a single Approved/ scan-and-dispatch pass without
// starting the watch loop, for the --once CLI path (spec.md §6).
func (r *Router) ScanOnce(ctx context.Context) {
	r.scan(ctx)
}

// scan lists Approved/ and dispatches every file not currently skipped
// by the deferred-cooldown tracker.
func (r *Router) scan(ctx context.Context) {
	entries, err := r.v.List(vault.Approved)
	if err != nil {
		r.log.Error("orchestrator: list Approved failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		if r.state.ShouldSkip(e.Stem) {
			continue
		}
		r.inflight.Add(1)
		func() {
			defer r.inflight.Done()
			r.dispatchOne(ctx, e.Stem)
		}()
	}
}

// SendNow dispatches a single named stem immediately, used by the
// --send-now CLI path (spec.md §6). It calls the exact same dispatch
// function the watch loop uses so the two paths cannot diverge.
func (r *Router) SendNow(ctx context.Context, stem string) (adapter.Outcome, error) {
	return r.dispatchOne(ctx, stem)
}

// dispatchOne runs one file through classify → policy gate → dispatch →
// terminal move, updating the state tracker and audit log throughout.
func (r *Router) dispatchOne(ctx context.Context, stem string) (adapter.Outcome, error) {
	r.state.Transition(stem, StateObserved)

	entry, ok, err := r.v.Find(vault.Approved, stem)
	if err != nil {
		r.log.Error("orchestrator: find failed", zap.String("stem", stem), zap.Error(err))
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("orchestrator: %s not in Approved", stem)
	}

	note, err := readNote(entry.Path)
	if err != nil {
		r.rejectWithError(stem, err)
		return adapter.Rejected, err
	}

	if err := r.policy.Check(stem, note, r.clk.Now()); err != nil {
		r.rejectWithError(stem, err)
		return adapter.Rejected, err
	}
	r.state.Transition(stem, StateAccepted)

	a := r.registry.Resolve(note.Preamble.Type, note.Preamble.Action)
	r.state.Transition(stem, StateDispatched)

	outcome, dispatchErr := a.Dispatch(ctx, entry, note)
	r.logOutcome(stem, note.Preamble.Action, outcome, dispatchErr)

	switch outcome {
	case adapter.Sent, adapter.Drafted:
		if _, err := r.v.Move(vault.Approved, vault.Done, stem); err != nil {
			r.log.Error("orchestrator: move to Done failed", zap.String("stem", stem), zap.Error(err))
		}
		r.state.Transition(stem, StateTerminal)
		r.state.Forget(stem)
	case adapter.Rejected:
		r.rejectWithError(stem, dispatchErr)
	case adapter.Deferred:
		r.state.Transition(stem, StateDeferred)
	}

	return outcome, dispatchErr
}

// rejectWithError moves a stem from Approved to Rejected and writes a
// sibling error record, per spec.md §7's policy/integrity handling.
func (r *Router) rejectWithError(stem string, cause error) {
	if _, err := r.v.Move(vault.Approved, vault.Rejected, stem); err != nil {
		r.log.Error("orchestrator: move to Rejected failed", zap.String("stem", stem), zap.Error(err))
		return
	}
	r.state.Transition(stem, StateTerminal)
	r.state.Forget(stem)

	errPath := filepath.Join(r.v.Layout.StageDir(vault.Rejected), stem+"_error.md")
	_ = writeErrorSibling(errPath, stem, cause)

	kind := vaulterrors.Classify(cause)
	r.log.Info("orchestrator: rejected", zap.String("stem", stem), zap.String("kind", kind.String()), zap.Error(cause))
}

func (r *Router) logOutcome(stem, action string, outcome adapter.Outcome, err error) {
	result := string(outcome)
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	_ = r.v.Log.Append(logRecord(stem, action, result, detail))
}
