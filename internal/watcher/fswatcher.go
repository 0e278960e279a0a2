package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/vault"
)

// FSWatcher hoists files dropped into Inbox/ over to Needs_Action/ once
// they have settled for debounceDur, per spec.md's data-flow diagram
// ("Inbox/ → filesystem-watcher → Needs_Action/"). Grounded on
// mangle_watcher's fsnotify-plus-debounce-map loop.
type FSWatcher struct {
	v           *vault.Vault
	watcher     *fsnotify.Watcher
	debounceDur time.Duration
	log         *zap.Logger

	mu       sync.Mutex
	pending  map[string]time.Time
}

// NewFSWatcher builds an FSWatcher over v's Inbox directory.
func NewFSWatcher(v *vault.Vault, debounceDur time.Duration, log *zap.Logger) (*FSWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounceDur <= 0 {
		debounceDur = 500 * time.Millisecond
	}
	return &FSWatcher{
		v:           v,
		watcher:     fw,
		debounceDur: debounceDur,
		log:         log,
		pending:     make(map[string]time.Time),
	}, nil
}

// Run watches Inbox/ until ctx is cancelled, hoisting settled files to
// Needs_Action/. Pre-existing files are hoisted once at startup so a
// crash between drop and hoist is not lost.
func (fw *FSWatcher) Run(ctx context.Context) error {
	inboxDir := fw.v.Layout.StageDir(vault.Inbox)
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return err
	}
	if err := fw.watcher.Add(inboxDir); err != nil {
		return err
	}
	defer fw.watcher.Close()

	fw.hoistExisting()

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.log.Error("inbox watcher error", zap.Error(err))

		case <-debounceTicker.C:
			fw.processSettled()
		}
	}
}

func (fw *FSWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	fw.mu.Lock()
	fw.pending[event.Name] = time.Now()
	fw.mu.Unlock()
}

func (fw *FSWatcher) hoistExisting() {
	entries, err := fw.v.List(vault.Inbox)
	if err != nil {
		fw.log.Error("inbox watcher: list existing entries failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		fw.hoist(e.Stem)
	}
}

func (fw *FSWatcher) processSettled() {
	fw.mu.Lock()
	now := time.Now()
	var settled []string
	for path, seenAt := range fw.pending {
		if now.Sub(seenAt) >= fw.debounceDur {
			settled = append(settled, path)
			delete(fw.pending, path)
		}
	}
	fw.mu.Unlock()

	for _, path := range settled {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		stem := vault.StemOf(filepath.Base(path))
		fw.hoist(stem)
	}
}

func (fw *FSWatcher) hoist(stem string) {
	if _, err := fw.v.Move(vault.Inbox, vault.NeedsAction, stem); err != nil {
		fw.log.Error("inbox watcher: hoist failed", zap.String("stem", stem), zap.Error(err))
		return
	}
	fw.log.Info("inbox watcher: hoisted to Needs_Action", zap.String("stem", stem))
}
