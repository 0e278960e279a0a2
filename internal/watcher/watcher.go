package watcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// DestStage is the stage a Watcher emits new items into: Inbox/ for
// sources the filesystem watcher later hoists, or directly into
// Needs_Action/ for sources that should skip the hoist (spec.md §4.4.3).
type DestStage = vault.Stage

// Config parameterizes one Watcher instance.
type Config struct {
	Interval time.Duration
	DestStage DestStage
	DryRun   bool

	Backoff retry.Backoff
	Breaker *retry.Breaker
	Bucket  *retry.TokenBucket
}

// Watcher runs the common poll→dedup→emit loop around one Source.
type Watcher struct {
	src    Source
	vault  *vault.Vault
	seen   *SeenStore
	clk    clock.Clock
	log    *zap.Logger
	cfg    Config
}

// New builds a Watcher for src, emitting into v and deduping against seen.
func New(src Source, v *vault.Vault, seen *SeenStore, clk clock.Clock, log *zap.Logger, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.DestStage == "" {
		cfg.DestStage = vault.Inbox
	}
	return &Watcher{src: src, vault: v, seen: seen, clk: clk, log: log, cfg: cfg}
}

// Run polls src at cfg.Interval until ctx is cancelled or a permanent
// source error occurs, in which case Run returns that error so the
// owning process can exit (spec.md §4.4: "permanent source error stops
// the offending watcher").
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	if err := w.tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce runs a single poll-dedup-emit cycle without starting the
// ticker loop, for the --once CLI path (spec.md §6).
func (w *Watcher) RunOnce(ctx context.Context) error {
	return w.tick(ctx)
}

// tick runs one poll-dedup-emit cycle, classifying and acting on any
// error per the shared taxonomy.
func (w *Watcher) tick(ctx context.Context) error {
	items, err := w.pollWithGuards(ctx)
	if err != nil {
		kind := vaulterrors.Classify(err)
		w.log.Error("watcher poll failed",
			zap.String("source", w.src.Name()), zap.String("kind", kind.String()), zap.Error(err))
		if kind == vaulterrors.KindPermanent || kind == vaulterrors.KindFatal {
			_ = w.emitUrgent(err)
			return err
		}
		// Transient: the backoff wrapper already retried internally;
		// surfacing here means attempts were exhausted. Skip this tick,
		// try again next cadence.
		return nil
	}

	for _, item := range items {
		if err := w.handleItem(item); err != nil {
			w.log.Error("watcher failed to emit item",
				zap.String("source", w.src.Name()), zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	return nil
}

func (w *Watcher) pollWithGuards(ctx context.Context) ([]Item, error) {
	call := func() ([]Item, error) { return w.src.Poll(ctx) }

	var items []Item
	err := w.cfg.Backoff.Run(ctx, func() error {
		if w.cfg.Breaker == nil {
			var innerErr error
			items, innerErr = call()
			return innerErr
		}
		result, err := w.cfg.Breaker.Execute(func() (any, error) { return call() })
		if err != nil {
			return err
		}
		items = result.([]Item)
		return nil
	})
	return items, err
}

func (w *Watcher) handleItem(item Item) error {
	seen, err := w.seen.Seen(item.ID)
	if err != nil {
		return fmt.Errorf("watcher: check seen-set: %w", err)
	}
	if seen {
		return nil
	}

	if w.cfg.DryRun {
		w.log.Info("dry-run: would emit item",
			zap.String("source", w.src.Name()), zap.String("item_id", item.ID), zap.String("topic", item.Topic))
		return nil
	}

	if w.cfg.Bucket != nil {
		if err := w.cfg.Bucket.TryAcquire(w.src.Name()); err != nil {
			return err
		}
	}

	eventType := item.Note.Preamble.Type
	if eventType == "" {
		eventType = "emit"
	}
	entry, err := w.vault.EmitAs(w.cfg.DestStage, item.Kind, item.Topic, item.Note, item.Ext, eventType)
	if err != nil {
		return fmt.Errorf("watcher: emit %s: %w", item.ID, err)
	}

	if err := w.seen.MarkSeen(item.ID); err != nil {
		return fmt.Errorf("watcher: mark seen %s: %w", item.ID, err)
	}

	w.log.Info("watcher emitted item",
		zap.String("source", w.src.Name()), zap.String("item_id", item.ID), zap.String("stem", entry.Stem))
	return nil
}

// emitUrgent records a permanent-failure note so a human notices the
// watcher stopped, per spec.md §7's permanent-error handling.
func (w *Watcher) emitUrgent(cause error) error {
	now := w.clk.Now()
	note := vault.Note{
		Preamble: vault.Preamble{
			Type:     "watcher_failure",
			Action:   "acknowledge_and_archive",
			Priority: vault.PriorityP0,
			Status:   vault.StatusPending,
			Created:  now,
			Extra:    map[string]any{"source": w.src.Name()},
		},
		Body: fmt.Sprintf("Watcher %q stopped: %v", w.src.Name(), cause),
	}
	_, err := w.vault.Emit(vault.NeedsAction, vault.KindUrgent, w.src.Name(), note, ".md")
	return err
}
