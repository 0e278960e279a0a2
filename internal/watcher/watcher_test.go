package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/eventlog"
	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

type fakeSource struct {
	mu    sync.Mutex
	items [][]Item
	calls int
	errs  []error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Poll(ctx context.Context) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return nil, err
	}
	if idx < len(f.items) {
		return f.items[idx], nil
	}
	return nil, nil
}

func newTestVaultForWatcher(t *testing.T) *vault.Vault {
	t.Helper()
	root := t.TempDir()
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	log := eventlog.NewLogger(filepath.Join(root, "Logs"), clk)
	t.Cleanup(func() { _ = log.Close() })
	v, err := vault.New(root, clk, log)
	require.NoError(t, err)
	return v
}

func sampleItem(id, topic string) Item {
	return Item{
		ID:    id,
		Kind:  vault.KindEmail,
		Topic: topic,
		Ext:   ".md",
		Note: vault.Note{
			Preamble: vault.Preamble{
				Type:     "email",
				Action:   "send_email",
				Priority: vault.PriorityP2,
				Status:   vault.StatusPending,
				Created:  time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC),
			},
			Body: "body",
		},
	}
}

func TestWatcherEmitsNewItemsAndSkipsSeen(t *testing.T) {
	v := newTestVaultForWatcher(t)
	seen, err := NewSeenStore(filepath.Join(t.TempDir(), "seen.db"), "fake")
	require.NoError(t, err)
	defer seen.Close()

	src := &fakeSource{items: [][]Item{{sampleItem("1", "hello"), sampleItem("2", "world")}}}
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	w := New(src, v, seen, clk, zap.NewNop(), Config{
		Interval: time.Hour,
		Backoff:  retry.NewBackoff(time.Millisecond, time.Millisecond, 1),
	})

	require.NoError(t, w.tick(context.Background()))

	entries, err := v.List(vault.Inbox)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Re-running tick with the same items (as if the source reported
	// them again) must not duplicate emission.
	src.items = [][]Item{nil, {sampleItem("1", "hello"), sampleItem("2", "world")}}
	require.NoError(t, w.tick(context.Background()))

	entries, err = v.List(vault.Inbox)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestWatcherPermanentErrorStopsAndEmitsUrgent(t *testing.T) {
	v := newTestVaultForWatcher(t)
	seen, err := NewSeenStore(filepath.Join(t.TempDir(), "seen.db"), "fake")
	require.NoError(t, err)
	defer seen.Close()

	src := &fakeSource{errs: []error{vaulterrors.ErrAuthFailed}}
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	w := New(src, v, seen, clk, zap.NewNop(), Config{
		Interval: time.Hour,
		Backoff:  retry.NewBackoff(time.Millisecond, time.Millisecond, 1),
	})

	err = w.tick(context.Background())
	require.ErrorIs(t, err, vaulterrors.ErrAuthFailed)

	entries, listErr := v.List(vault.NeedsAction)
	require.NoError(t, listErr)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Stem, "URGENT")
}

func TestWatcherTransientErrorSkipsTickWithoutStopping(t *testing.T) {
	v := newTestVaultForWatcher(t)
	seen, err := NewSeenStore(filepath.Join(t.TempDir(), "seen.db"), "fake")
	require.NoError(t, err)
	defer seen.Close()

	src := &fakeSource{errs: []error{vaulterrors.ErrUnavailable, vaulterrors.ErrUnavailable}}
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	w := New(src, v, seen, clk, zap.NewNop(), Config{
		Interval: time.Hour,
		Backoff:  retry.NewBackoff(time.Millisecond, time.Millisecond, 2),
	})

	require.NoError(t, w.tick(context.Background()))
}

func TestWatcherDryRunDoesNotEmit(t *testing.T) {
	v := newTestVaultForWatcher(t)
	seen, err := NewSeenStore(filepath.Join(t.TempDir(), "seen.db"), "fake")
	require.NoError(t, err)
	defer seen.Close()

	src := &fakeSource{items: [][]Item{{sampleItem("1", "hello")}}}
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	w := New(src, v, seen, clk, zap.NewNop(), Config{
		Interval: time.Hour,
		DryRun:   true,
		Backoff:  retry.NewBackoff(time.Millisecond, time.Millisecond, 1),
	})

	require.NoError(t, w.tick(context.Background()))

	entries, err := v.List(vault.Inbox)
	require.NoError(t, err)
	require.Empty(t, entries)
}
