// Command syncbridged drives the git sync bridge: pull the shared
// remote, resolve any merge conflicts per the per-directory conflict
// policy, and push local changes back (spec.md §4.9). It is the cloud
// peer's counterpart to watcherd/orchestratord — typically run only
// when AgentMode is "cloud", since the local peer reads the cloud's
// state via signal-merge instead of git.
//
// Command structure follows jra3-linear-fuse's cobra root-command
// pattern, matching the other two cmd/* entry points.
package main

import (
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
	"github.com/vaultwork/orchestrator/internal/syncbridge"
	"github.com/vaultwork/orchestrator/internal/vault"
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
	branch       string
}

type rootCmd struct {
	cmd      *cobra.Command
	flags    rootFlags
	exitCode int
}

func newRootCmd() *rootCmd {
	rc := &rootCmd{}
	cmd := &cobra.Command{
		Use:          "syncbridged",
		Short:        "Pull, resolve conflicts, and push the vault's git remote",
		SilenceUsage: true,
		RunE:         rc.runE,
	}
	cmd.Flags().StringVar(&rc.flags.vaultPath, "vault", "", "path to the vault root (required)")
	cmd.Flags().StringVar(&rc.flags.configPath, "config", "", "optional YAML config file")
	cmd.Flags().BoolVar(&rc.flags.once, "once", false, "run one sync cycle then exit")
	cmd.Flags().BoolVar(&rc.flags.dryRun, "dry-run", false, "skip the sync cycle: log that it was skipped and exit without running git")
	cmd.Flags().IntVar(&rc.flags.intervalSecs, "interval", 0, "sync interval in seconds (default 300)")
	cmd.Flags().StringVar(&rc.flags.branch, "branch", "", "git branch to sync (default: GIT_VAULT_BRANCH, else main)")
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
		fmt.Fprintln(os.Stderr, "syncbridged:", err)
		rc.exitCode = exitConfig
		return nil
	}
	if f.dryRun {
		cfg.DryRun = true
	}
	branch := f.branch
	if branch == "" {
		branch = cfg.GitVaultBranch
	}

	log, err := logging.NewFromEnv("syncbridged")
	if err != nil {
		fmt.Fprintln(os.Stderr, "syncbridged:", err)
		rc.exitCode = exitConfig
		return nil
	}
	defer log.Sync() //nolint:errcheck

	clk := clock.NewReal()
	elog := eventlog.NewLogger(filepath.Join(cfg.VaultPath, string(vault.Logs)), clk)
	defer elog.Close() //nolint:errcheck

	v, err := vault.New(cfg.VaultPath, clk, elog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "syncbridged:", err)
		rc.exitCode = exitConfig
		return nil
	}

	bridge := syncbridge.New(syncbridge.CommandGitRunner{}, v, clk, log.Named("bridge"), syncbridge.Config{
		RepoRoot: cfg.VaultPath,
		Branch:   branch,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	interval := 5 * time.Minute
	if f.intervalSecs > 0 {
		interval = time.Duration(f.intervalSecs) * time.Second
	}

	if cfg.DryRun {
		log.Info("syncbridged: dry-run, skipping sync cycle")
		rc.exitCode = exitOK
		return nil
	}

	if f.once {
		out := bridge.RunOnce(ctx)
		rc.exitCode = exitCodeForOutcome(out, log)
		return nil
	}

	bridge.Run(ctx, interval)
	rc.exitCode = exitOK
	return nil
}

// exitCodeForOutcome maps a sync cycle's Outcome.Err to a CLI exit code,
// logging the failure first since Bridge itself never logs a hard error
// for RunOnce (only Run's loop does).
func exitCodeForOutcome(out syncbridge.Outcome, log *zap.Logger) int {
	if out.Err == nil {
		return exitOK
	}
	log.Error("syncbridged: sync cycle failed", zap.Error(out.Err))
	switch vaulterrors.Classify(out.Err) {
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
