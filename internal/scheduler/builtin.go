package scheduler

import "context"

// mustParse panics on a malformed literal cadence string; only used for
// the fixed built-in table below, never for user/config-supplied strings
// (those go through Parse and return an error).
func mustParse(s string) Cadence {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Built-in job names, per spec.md §4.7.
const (
	JobInboxProcessing  = "inbox-processing"
	JobDashboardRefresh = "dashboard-refresh"
	JobMorningBriefing  = "morning-briefing"
	JobWeeklyAudit      = "weekly-audit"
	JobVaultSync        = "vault-sync"
	JobSignalMerge      = "signal-merge"
)

// RegisterBuiltins adds the spec.md §4.7 built-in job table to s. peered
// gates vault-sync (peered-mode only); local gates signal-merge
// (local-mode only) — exactly one of the two modes is active per process.
func RegisterBuiltins(s *Scheduler, peered bool, fns BuiltinFuncs) {
	s.Add(Job{Name: JobInboxProcessing, Cadence: mustParse("@every 30m"), Fn: orNoop(fns.InboxProcessing)})
	s.Add(Job{Name: JobDashboardRefresh, Cadence: mustParse("@every 1h"), Fn: orNoop(fns.DashboardRefresh)})
	s.Add(Job{Name: JobMorningBriefing, Cadence: mustParse("@daily 08:00"), Fn: orNoop(fns.MorningBriefing)})
	s.Add(Job{Name: JobWeeklyAudit, Cadence: mustParse("@weekly Mon 07:00"), Fn: orNoop(fns.WeeklyAudit)})

	if peered {
		s.Add(Job{Name: JobVaultSync, Cadence: mustParse("@every 5m"), Fn: orNoop(fns.VaultSync)})
	}
	if !peered {
		s.Add(Job{Name: JobSignalMerge, Cadence: mustParse("@every 30m"), Fn: orNoop(fns.SignalMerge)})
	}
}

func orNoop(fn func(ctx context.Context) error) func(ctx context.Context) error {
	if fn != nil {
		return fn
	}
	return func(ctx context.Context) error { return nil }
}

// BuiltinFuncs supplies the actual work for each built-in job. Any nil
// func defaults to a no-op so partial wiring (e.g. in tests) doesn't panic.
type BuiltinFuncs struct {
	InboxProcessing  func(ctx context.Context) error
	DashboardRefresh func(ctx context.Context) error
	MorningBriefing  func(ctx context.Context) error
	WeeklyAudit      func(ctx context.Context) error
	VaultSync        func(ctx context.Context) error
	SignalMerge      func(ctx context.Context) error
}
