package syncbridge

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
)

// writeAtomic writes content to dir/name via a temp file followed by
// os.Rename, so concurrent readers never observe a partial write.
func writeAtomic(dir, name, content string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

// Bridge periodically pulls the shared remote, resolves any merge
// conflicts per DirectoryPolicies, and pushes local changes back
// (spec.md §4.9).
type Bridge struct {
	runner GitRunner
	v      *vault.Vault
	repo   string
	branch string
	clk    clock.Clock
	log    *zap.Logger
}

// Config configures a Bridge.
type Config struct {
	RepoRoot string // working directory git commands run in; usually the vault root
	Branch   string // GIT_VAULT_BRANCH
}

// New builds a Bridge.
func New(runner GitRunner, v *vault.Vault, clk clock.Clock, log *zap.Logger, cfg Config) *Bridge {
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &Bridge{runner: runner, v: v, repo: cfg.RepoRoot, branch: branch, clk: clk, log: log}
}

// Outcome tallies one sync cycle's results, written into the SYNC_STATUS
// signal note.
type Outcome struct {
	Pulled            bool
	ConflictsFound    int
	ConflictsResolved int
	Pushed            bool
	Err               error
}

// RunOnce performs one pull-resolve-push cycle and writes a SYNC_STATUS
// signal recording the outcome, regardless of success or failure.
func (b *Bridge) RunOnce(ctx context.Context) Outcome {
	var out Outcome

	pullErr := Pull(ctx, b.runner, b.repo, b.branch)
	if pullErr != nil && isMergeConflict(pullErr) {
		conflicted, listErr := b.conflictedPaths(ctx)
		if listErr != nil {
			out.Err = fmt.Errorf("syncbridge: list conflicts: %w", listErr)
			b.writeStatus(out)
			return out
		}
		out.ConflictsFound = len(conflicted)

		resolved, resolveErr := b.resolveConflicts(ctx, conflicted)
		out.ConflictsResolved = resolved
		if resolveErr != nil {
			out.Err = fmt.Errorf("syncbridge: resolve conflicts: %w", resolveErr)
			b.writeStatus(out)
			return out
		}
		if _, err := b.runner.Run(ctx, b.repo, "commit", "--no-edit"); err != nil {
			out.Err = fmt.Errorf("syncbridge: conclude merge: %w", err)
			b.writeStatus(out)
			return out
		}
	} else if pullErr != nil {
		out.Err = fmt.Errorf("syncbridge: pull: %w", pullErr)
		b.writeStatus(out)
		return out
	}
	out.Pulled = true

	if err := Push(ctx, b.runner, b.repo, b.branch, "sync: vault update"); err != nil {
		out.Err = fmt.Errorf("syncbridge: push: %w", err)
		b.writeStatus(out)
		return out
	}
	out.Pushed = true

	b.writeStatus(out)
	return out
}

func isMergeConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "CONFLICT") || strings.Contains(msg, "Automatic merge failed")
}

// conflictedPaths lists every repo-relative path git reports as unmerged.
func (b *Bridge) conflictedPaths(ctx context.Context) ([]string, error) {
	out, err := b.runner.Run(ctx, b.repo, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// resolveConflicts applies PolicyFor to every conflicted path concurrently
// (golang.org/x/sync/errgroup).
func (b *Bridge) resolveConflicts(ctx context.Context, paths []string) (int, error) {
	var resolved int32
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := b.resolveOne(gctx, p); err != nil {
				return err
			}
			mu.Lock()
			resolved++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(resolved), err
	}
	return int(resolved), nil
}

func (b *Bridge) resolveOne(ctx context.Context, path string) error {
	policy := PolicyFor(path)
	switch policy {
	case PolicyNeverSync:
		// Should not appear under version control at all; if it does,
		// keep the local working-tree copy untouched.
		_, err := b.runner.Run(ctx, b.repo, "checkout", "--ours", "--", path)
		return err

	case PolicyPreferRemote:
		_, err := b.runner.Run(ctx, b.repo, "checkout", "--theirs", "--", path)
		if err != nil {
			return err
		}
		_, err = b.runner.Run(ctx, b.repo, "add", "--", path)
		return err

	case PolicyPreferLocalCoexist:
		_, err := b.runner.Run(ctx, b.repo, "checkout", "--ours", "--", path)
		if err != nil {
			return err
		}
		_, err = b.runner.Run(ctx, b.repo, "add", "--", path)
		return err

	case PolicyUnionByStatus:
		return b.resolveByStatus(ctx, path)

	default:
		return fmt.Errorf("syncbridge: unknown conflict policy for %s", path)
	}
}

// resolveByStatus reads both conflicting sides' note status fields and
// keeps whichever is further along the lifecycle (spec.md §4.9: "Approved
// beats pending").
func (b *Bridge) resolveByStatus(ctx context.Context, path string) error {
	ours, oursErr := b.runner.Run(ctx, b.repo, "show", ":2:"+path)
	theirs, theirsErr := b.runner.Run(ctx, b.repo, "show", ":3:"+path)

	keepOurs := true
	if oursErr == nil && theirsErr == nil {
		oursNote, oErr := vault.ParseNote(ours)
		theirsNote, tErr := vault.ParseNote(theirs)
		if oErr == nil && tErr == nil && rankOf(theirsNote.Preamble.Status) > rankOf(oursNote.Preamble.Status) {
			keepOurs = false
		}
	} else if oursErr != nil {
		keepOurs = false // our side is missing/unreadable; fall back to theirs
	}

	side := "--ours"
	if !keepOurs {
		side = "--theirs"
	}
	if _, err := b.runner.Run(ctx, b.repo, "checkout", side, "--", path); err != nil {
		return err
	}
	_, err := b.runner.Run(ctx, b.repo, "add", "--", path)
	return err
}

// writeStatus rewrites the single Signals/SYNC_STATUS.md file with this
// cycle's outcome. Like Dashboard, SYNC_STATUS is a rewritten singleton,
// not an accumulating queue entry, so it uses the same write-temp-then-
// rename discipline (spec.md §5) rather than vault.Emit's collision-safe
// timestamped naming.
func (b *Bridge) writeStatus(out Outcome) {
	detail := fmt.Sprintf("pulled=%v conflicts_found=%d conflicts_resolved=%d pushed=%v",
		out.Pulled, out.ConflictsFound, out.ConflictsResolved, out.Pushed)
	if out.Err != nil {
		detail += fmt.Sprintf(" error=%q", out.Err.Error())
	}

	note := vault.Note{
		Preamble: vault.Preamble{
			Type:    "sync_status",
			Action:  "record",
			Status:  vault.StatusDone,
			Created: b.clk.Now(),
			Extra: map[string]any{
				"pulled":             out.Pulled,
				"conflicts_found":    out.ConflictsFound,
				"conflicts_resolved": out.ConflictsResolved,
				"pushed":             out.Pushed,
			},
		},
		Body: detail,
	}
	rendered, err := vault.RenderNote(note)
	if err != nil {
		b.log.Warn("syncbridge: failed to render SYNC_STATUS signal", zap.Error(err))
		return
	}
	if err := writeAtomic(b.v.Layout.StageDir(vault.Signals), "SYNC_STATUS.md", rendered); err != nil {
		b.log.Warn("syncbridge: failed to write SYNC_STATUS signal", zap.Error(err))
	}
}

// Run drives RunOnce at interval until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out := b.RunOnce(ctx)
			if out.Err != nil {
				b.log.Error("syncbridge: sync cycle failed", zap.Error(out.Err))
			} else {
				b.log.Info("syncbridge: sync cycle complete",
					zap.Int("conflicts_resolved", out.ConflictsResolved), zap.Bool("pushed", out.Pushed))
			}
		}
	}
}
