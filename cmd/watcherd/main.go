// Command watcherd runs one watcher-framework process over a single
// external source (spec.md §4.4). Each watcher is its own supervised OS
// process per spec.md §5, so one watcherd instance watches exactly one
// source; running watchers over several sources means starting several
// watcherd processes with distinct --source-dir/--seen-db flags.
//
// The reference source type wired here is DropSource, a local-filesystem
// drop directory — the one concrete Source the distilled spec names
// outright alongside "mailbox" and "social inbox". Command structure
// follows jra3-linear-fuse's cobra root-command pattern, and --setup's
// interactive bootstrap follows its mount command's stdin-prompt style.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/config"
	"github.com/vaultwork/orchestrator/internal/eventlog"
	"github.com/vaultwork/orchestrator/internal/logging"
	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/internal/watcher"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// Exit codes, per spec.md §6.
const (
	exitOK        = 0
	exitTransient = 1
	exitConfig    = 2
	exitPermanent = 3
)

func main() {
	os.Exit(newRootCmd().run())
}

type rootFlags struct {
	vaultPath    string
	configPath   string
	once         bool
	dryRun       bool
	intervalSecs int
	setup        bool
	sourceDir    string
	seenDBPath   string
}

type rootCmd struct {
	cmd      *cobra.Command
	flags    rootFlags
	exitCode int
}

func newRootCmd() *rootCmd {
	rc := &rootCmd{}
	cmd := &cobra.Command{
		Use:          "watcherd",
		Short:        "Poll one external source and emit action notes into the vault",
		SilenceUsage: true,
		RunE:         rc.runE,
	}
	cmd.Flags().StringVar(&rc.flags.vaultPath, "vault", "", "path to the vault root (required)")
	cmd.Flags().StringVar(&rc.flags.configPath, "config", "", "optional YAML config file")
	cmd.Flags().BoolVar(&rc.flags.once, "once", false, "run one poll cycle then exit")
	cmd.Flags().BoolVar(&rc.flags.dryRun, "dry-run", false, "no external side-effects (logs what would be emitted)")
	cmd.Flags().IntVar(&rc.flags.intervalSecs, "interval", 0, "polling interval in seconds (default 30)")
	cmd.Flags().BoolVar(&rc.flags.setup, "setup", false, "interactive bootstrap: create and confirm the watched directory, then exit")
	cmd.Flags().StringVar(&rc.flags.sourceDir, "source-dir", "", "directory to watch (default: <vault>/.incoming)")
	cmd.Flags().StringVar(&rc.flags.seenDBPath, "seen-db", "", "seen-set sidecar path, outside the vault (default: <vault>/.watcherd_seen.db)")
	rc.cmd = cmd
	return rc
}

func (rc *rootCmd) run() int {
	if err := rc.cmd.Execute(); err != nil {
		return exitConfig
	}
	return rc.exitCode
}

func (rc *rootCmd) runE(cmd *cobra.Command, args []string) error {
	f := rc.flags
	if f.vaultPath != "" {
		os.Setenv("VAULT_PATH", f.vaultPath)
	}
	cfg, err := config.LoadWithEnv(f.configPath, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "watcherd:", err)
		rc.exitCode = exitConfig
		return nil
	}
	if f.dryRun {
		cfg.DryRun = true
	}

	sourceDir := f.sourceDir
	if sourceDir == "" {
		sourceDir = filepath.Join(cfg.VaultPath, ".incoming")
	}
	seenDBPath := f.seenDBPath
	if seenDBPath == "" {
		seenDBPath = filepath.Join(cfg.VaultPath, ".watcherd_seen.db")
	}

	if f.setup {
		rc.exitCode = runSetup(sourceDir)
		return nil
	}

	log, err := logging.NewFromEnv("watcherd")
	if err != nil {
		fmt.Fprintln(os.Stderr, "watcherd:", err)
		rc.exitCode = exitConfig
		return nil
	}
	defer log.Sync() //nolint:errcheck

	clk := clock.NewReal()
	elog := eventlog.NewLogger(filepath.Join(cfg.VaultPath, string(vault.Logs)), clk)
	defer elog.Close() //nolint:errcheck

	v, err := vault.New(cfg.VaultPath, clk, elog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "watcherd:", err)
		rc.exitCode = exitConfig
		return nil
	}

	seen, err := watcher.NewSeenStore(seenDBPath, "drop")
	if err != nil {
		fmt.Fprintln(os.Stderr, "watcherd:", err)
		rc.exitCode = exitConfig
		return nil
	}
	defer seen.Close() //nolint:errcheck

	interval := 30 * time.Second
	if f.intervalSecs > 0 {
		interval = time.Duration(f.intervalSecs) * time.Second
	}

	breakerRegistry := retry.NewRegistry(func(name string) retry.BreakerConfig {
		return retry.BreakerConfig{Name: name, FailureThreshold: 5, Cooldown: time.Minute}
	})
	buckets := retry.NewBuckets(cfg.Channels, clk)

	src := watcher.NewDropSource(sourceDir, clk)
	w := watcher.New(src, v, seen, clk, log.Named(src.Name()), watcher.Config{
		Interval:  interval,
		DestStage: vault.Inbox,
		DryRun:    cfg.DryRun,
		Backoff:   retry.NewBackoff(time.Second, 30*time.Second, 5),
		Breaker:   breakerRegistry.For(src.Name()),
		Bucket:    buckets.For("file_drop"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "watcherd:", err)
		rc.exitCode = exitConfig
		return nil
	}

	if f.once {
		if err := w.RunOnce(ctx); err != nil {
			log.Error("watcherd: poll cycle failed", zap.Error(err))
			rc.exitCode = exitCodeForErr(err)
			return nil
		}
		rc.exitCode = exitOK
		return nil
	}

	if err := w.Run(ctx); err != nil {
		log.Error("watcherd: stopped", zap.Error(err))
		rc.exitCode = exitCodeForErr(err)
		return nil
	}
	rc.exitCode = exitOK
	return nil
}

// runSetup walks the operator through creating the watched directory —
// the interactive bootstrap spec.md §6 calls out for watchers (session
// creation and credential exchange for richer sources; for the
// filesystem reference source there are no credentials, only the
// directory itself).
func runSetup(sourceDir string) int {
	fmt.Printf("watcherd setup: this watcher polls a local directory for dropped files.\n")
	fmt.Printf("Directory to watch [%s]: ", sourceDir)

	scanner := bufio.NewScanner(os.Stdin)
	dir := sourceDir
	if scanner.Scan() {
		if line := scanner.Text(); line != "" {
			dir = line
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "watcherd setup: create directory:", err)
		return exitConfig
	}
	fmt.Printf("Ready: %s will be polled on the next watcherd run.\n", dir)
	return exitOK
}

func exitCodeForErr(err error) int {
	switch vaulterrors.Classify(err) {
	case vaulterrors.KindTransient:
		return exitTransient
	case vaulterrors.KindPermanent, vaulterrors.KindFatal:
		return exitPermanent
	case vaulterrors.KindPolicy, vaulterrors.KindIntegrity:
		return exitConfig
	default:
		return exitTransient
	}
}
