package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// DropSource implements Source over a plain local-filesystem directory,
// the one reference source type spec.md names outright alongside
// "mailbox" and "social inbox" (§4.4). It is a separate directory from
// the vault's own Inbox/ — think a Downloads folder or a scanner's
// output directory — so that dropping a file there still goes through
// the full poll/dedup/emit contract common to every watcher, rather
// than being a vault-internal mechanism like FSWatcher's Inbox hoist.
//
// Processed files are left in place; DropSource relies on the Watcher's
// SeenStore (keyed on name+size+mtime) for dedup, the same way an email
// source relies on the seen-set rather than deleting read mail.
type DropSource struct {
	Dir string
	clk clock.Clock
}

// NewDropSource builds a DropSource watching dir.
func NewDropSource(dir string, clk clock.Clock) *DropSource {
	return &DropSource{Dir: dir, clk: clk}
}

// Name identifies this source for logging and rate-limit/breaker naming.
func (s *DropSource) Name() string { return "drop:" + s.Dir }

// Poll lists every regular, non-hidden file in Dir and reports it as a
// file_drop Item. A missing directory is reported as no items rather
// than an error so a not-yet-created drop folder doesn't flap the
// circuit breaker.
func (s *DropSource) Poll(ctx context.Context) ([]Item, error) {
	infos, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read drop dir %s: %v", vaulterrors.ErrUnavailable, s.Dir, err)
	}

	var items []Item
	for _, info := range infos {
		select {
		case <-ctx.Done():
			return items, ctx.Err()
		default:
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}

		fi, err := info.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.Dir, info.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		ext := filepath.Ext(info.Name())
		topic := strings.TrimSuffix(info.Name(), ext)
		id := fmt.Sprintf("%s:%d:%d", info.Name(), fi.Size(), fi.ModTime().UnixNano())

		items = append(items, Item{
			ID:    id,
			Kind:  vault.KindFile,
			Topic: topic,
			Ext:   ".md",
			Note: vault.Note{
				Preamble: vault.Preamble{
					Type:     "file_drop",
					Action:   "review",
					Priority: vault.PriorityP3,
					Status:   vault.StatusPending,
					Created:  s.clk.Now(),
					Extra:    map[string]any{"source_path": path},
				},
				Body: string(content),
			},
		})
	}
	return items, nil
}
