// Command orchestratord is the orchestrator process: it watches
// Approved/, policy-gates and dispatches every approved artifact to an
// execution adapter, runs the cloud/local claim-by-move protocol over
// Needs_Action/, and drives the built-in scheduler jobs (inbox
// processing, dashboard refresh, morning briefing, weekly audit, and
// signal-merge in local mode). In cloud mode the vault-sync job is
// registered without a function and does nothing; the git sync itself
// runs in the separate syncbridged process.
//
// Command structure follows jra3-linear-fuse's cobra root-command
// pattern (cmd/linear-fuse/commands/root.go), adapted to flow flags
// into internal/config.LoadWithEnv directly rather than viper, since
// this module's own file-then-env config loader already does that job.
package main

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/adapter"
	"github.com/vaultwork/orchestrator/internal/briefing"
	"github.com/vaultwork/orchestrator/internal/claimpeer"
	"github.com/vaultwork/orchestrator/internal/config"
	"github.com/vaultwork/orchestrator/internal/eventlog"
	"github.com/vaultwork/orchestrator/internal/logging"
	"github.com/vaultwork/orchestrator/internal/orchestrator"
	"github.com/vaultwork/orchestrator/internal/reasoning"
	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/scheduler"
	"github.com/vaultwork/orchestrator/internal/signalmerge"
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
	sendNow      string
}

type rootCmd struct {
	cmd      *cobra.Command
	flags    rootFlags
	exitCode int
}

func newRootCmd() *rootCmd {
	rc := &rootCmd{}
	cmd := &cobra.Command{
		Use:          "orchestratord",
		Short:        "Dispatch approved vault artifacts to execution adapters",
		SilenceUsage: true,
		RunE:         rc.runE,
	}
	cmd.Flags().StringVar(&rc.flags.vaultPath, "vault", "", "path to the vault root (required)")
	cmd.Flags().StringVar(&rc.flags.configPath, "config", "", "optional YAML config file")
	cmd.Flags().BoolVar(&rc.flags.once, "once", false, "run one cycle then exit")
	cmd.Flags().BoolVar(&rc.flags.dryRun, "dry-run", false, "no external side-effects")
	cmd.Flags().IntVar(&rc.flags.intervalSecs, "interval", 0, "polling interval in seconds (default: component-specific)")
	cmd.Flags().StringVar(&rc.flags.sendNow, "send-now", "", "dispatch one Approved/ file immediately and exit")
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
	getenv := os.Getenv
	if f.vaultPath != "" {
		os.Setenv("VAULT_PATH", f.vaultPath)
	}
	cfg, err := config.LoadWithEnv(f.configPath, getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestratord:", err)
		rc.exitCode = exitConfig
		return nil
	}
	if f.dryRun {
		cfg.DryRun = true
	}

	log, err := logging.NewFromEnv("orchestratord")
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestratord:", err)
		rc.exitCode = exitConfig
		return nil
	}
	defer log.Sync() //nolint:errcheck

	clk := clock.NewReal()
	elog := eventlog.NewLogger(filepath.Join(cfg.VaultPath, string(vault.Logs)), clk)
	defer elog.Close() //nolint:errcheck

	v, err := vault.New(cfg.VaultPath, clk, elog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestratord:", err)
		rc.exitCode = exitConfig
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if f.sendNow != "" {
		rc.exitCode = sendNowOnce(ctx, v, cfg, clk, log, f.sendNow)
		return nil
	}

	interval := 5 * time.Second
	if f.intervalSecs > 0 {
		interval = time.Duration(f.intervalSecs) * time.Second
	}

	registry := buildAdapterRegistry(cfg, clk)
	policy := orchestrator.NewPolicyGate(orchestrator.PolicyConfig{AmountThreshold: cfg.Policy.AmountThreshold})
	router := orchestrator.New(v, registry, policy, clk, log.Named("router"), orchestrator.Config{
		PollInterval: interval,
		GraceWindow:  30 * time.Second,
		Cooldown:     5 * time.Minute,
	})
	sweep := orchestrator.NewExpirySweep(v, clk, log.Named("sweep"))

	peered := cfg.AgentMode == config.ModeCloud
	peer := claimpeer.New(v, clk, log.Named("claimpeer"), claimpeer.Config{Self: string(cfg.AgentMode)})
	otherPeer := vault.PeerCloud
	if cfg.AgentMode == config.ModeCloud {
		otherPeer = vault.PeerLocal
	}

	sched := scheduler.New(clk, log.Named("scheduler"))
	reporter := briefing.New(v, clk, log.Named("briefing"))
	merger := signalmerge.New(v, log.Named("signalmerge"))
	reasoner := reasoning.New(getenv("REASONING_COMMAND"), 10*time.Minute)
	scheduler.RegisterBuiltins(sched, peered, scheduler.BuiltinFuncs{
		InboxProcessing:  inboxProcessingJob(cfg, reasoner, log),
		DashboardRefresh: func(context.Context) error { return reporter.RefreshDashboard() },
		MorningBriefing:  func(context.Context) error { return reporter.MorningBriefing() },
		WeeklyAudit:      func(context.Context) error { return reporter.WeeklyAudit() },
		SignalMerge:      func(context.Context) error { return merger.Run(clk.Now()) },
	})
	sched.Add(scheduler.Job{
		Name:    "claim-sweep",
		Cadence: mustCadence("@every 30s"),
		Fn:      claimSweepJob(v, peer, otherPeer, log),
	})

	if f.once {
		sweep.Run()
		router.ScanOnce(ctx)
		sched.Tick(ctx)
		rc.exitCode = exitOK
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(ctx) }()
	go sched.Run(ctx, time.Second)

	select {
	case <-ctx.Done():
		rc.exitCode = exitOK
	case err := <-errCh:
		if err != nil {
			log.Error("orchestratord: router stopped", zap.Error(err))
			rc.exitCode = exitCodeForErr(err)
		} else {
			rc.exitCode = exitOK
		}
	}
	return nil
}

func sendNowOnce(ctx context.Context, v *vault.Vault, cfg *config.Config, clk clock.Clock, log *zap.Logger, stem string) int {
	registry := buildAdapterRegistry(cfg, clk)
	policy := orchestrator.NewPolicyGate(orchestrator.PolicyConfig{AmountThreshold: cfg.Policy.AmountThreshold})
	router := orchestrator.New(v, registry, policy, clk, log.Named("router"), orchestrator.Config{})
	if _, err := router.SendNow(ctx, stem); err != nil {
		fmt.Fprintln(os.Stderr, "orchestratord: send-now:", err)
		return exitCodeForErr(err)
	}
	return exitOK
}

func buildAdapterRegistry(cfg *config.Config, clk clock.Clock) *adapter.Registry {
	buckets := retry.NewBuckets(cfg.Channels, clk)

	var emailTransport adapter.EmailTransport
	if cfg.DryRun || cfg.SMTPAddr == "" {
		emailTransport = &adapter.RecordingTransport{}
	} else {
		var auth smtp.Auth
		if cfg.SMTPUser != "" {
			auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, hostOnly(cfg.SMTPAddr))
		}
		emailTransport = &adapter.SMTPTransport{Addr: cfg.SMTPAddr, From: cfg.SMTPUser, Auth: auth}
	}

	emailAdapter := adapter.NewEmailAdapter(emailTransport, buckets.For("email"))
	socialAdapter := adapter.NewSocialAdapter(&adapter.SocialRecordingTransport{}, buckets.For("social_post"))
	accountingAdapter := adapter.NewAccountingAdapter(&adapter.AccountingRecordingTransport{}, buckets.For("payment"))

	return adapter.NewRegistry(adapter.NewGeneric(), emailAdapter, socialAdapter, accountingAdapter)
}

func hostOnly(addr string) string {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

func inboxProcessingJob(cfg *config.Config, inv *reasoning.Invoker, log *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if cfg.DryRun || inv.Command == "" {
			log.Info("inbox-processing: dry-run or no reasoning command configured, skipping invoke")
			return nil
		}
		exitCode, err := inv.Invoke(ctx, cfg.VaultPath)
		if err != nil {
			return err
		}
		log.Info("inbox-processing: reasoning invocation complete", zap.Int("exit_code", exitCode))
		return nil
	}
}

func claimSweepJob(v *vault.Vault, peer *claimpeer.Peer, otherPeer string, log *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		entries, err := v.List(vault.NeedsAction)
		if err != nil {
			return err
		}
		for _, e := range entries {
			content, err := os.ReadFile(e.Path)
			if err != nil {
				continue
			}
			note, err := vault.ParseNote(string(content))
			if err != nil {
				log.Warn("claim-sweep: unreadable note", zap.String("stem", e.Stem), zap.Error(err))
				continue
			}
			if _, err := peer.TryClaim(e.Stem, note); err != nil {
				log.Warn("claim-sweep: claim failed", zap.String("stem", e.Stem), zap.Error(err))
			}
		}
		if _, err := peer.SweepStale(otherPeer); err != nil {
			log.Warn("claim-sweep: stale sweep failed", zap.Error(err))
		}
		return nil
	}
}

func mustCadence(s string) scheduler.Cadence {
	c, err := scheduler.Parse(s)
	if err != nil {
		panic(err)
	}
	return c
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
