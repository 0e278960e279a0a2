package briefing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/eventlog"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	root := t.TempDir()
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	log := eventlog.NewLogger(filepath.Join(root, "Logs"), clk)
	t.Cleanup(func() { _ = log.Close() })
	v, err := vault.New(root, clk, log)
	require.NoError(t, err)
	return v
}

func TestRefreshDashboardWritesStatsFence(t *testing.T) {
	v := newTestVault(t)
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	r := New(v, clk, zap.NewNop())

	require.NoError(t, r.RefreshDashboard())

	content, err := os.ReadFile(v.Layout.SingletonPath(vault.DashboardFile))
	require.NoError(t, err)
	require.Contains(t, string(content), statsBeginFence)
	require.Contains(t, string(content), statsEndFence)
	require.Contains(t, string(content), "In_Progress/local")
}

func TestRefreshDashboardPreservesOtherContent(t *testing.T) {
	v := newTestVault(t)
	dashboardPath := v.Layout.SingletonPath(vault.DashboardFile)
	require.NoError(t, os.WriteFile(dashboardPath, []byte("# Dashboard\n\nHand notes.\n"), 0o644))

	r := New(v, clock.NewFixed(time.Now()), zap.NewNop())
	require.NoError(t, r.RefreshDashboard())

	content, err := os.ReadFile(dashboardPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "Hand notes.")
	require.Contains(t, string(content), statsBeginFence)
}

func TestRefreshDashboardIsIdempotentOnRewrite(t *testing.T) {
	v := newTestVault(t)
	r := New(v, clock.NewFixed(time.Now()), zap.NewNop())

	require.NoError(t, r.RefreshDashboard())
	require.NoError(t, r.RefreshDashboard())

	content, err := os.ReadFile(v.Layout.SingletonPath(vault.DashboardFile))
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(string(content), statsBeginFence))
}

func TestMorningBriefingEmitsNote(t *testing.T) {
	v := newTestVault(t)
	r := New(v, clock.NewFixed(time.Now()), zap.NewNop())

	require.NoError(t, r.MorningBriefing())

	entries, err := v.List(vault.Briefings)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Stem, string(vault.KindBriefing))
}

func TestWeeklyAuditReportsOverdueApprovals(t *testing.T) {
	v := newTestVault(t)
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	note := vault.Note{
		Preamble: vault.Preamble{
			Type: "approval", Action: "send_email", Priority: vault.PriorityP1,
			Status: vault.StatusPending, Created: past, Expires: &past,
		},
	}
	rendered, err := vault.RenderNote(note)
	require.NoError(t, err)
	path := filepath.Join(v.Layout.StageDir(vault.PendingApproval), "APPROVAL_overdue_20200101000000.md")
	require.NoError(t, os.WriteFile(path, []byte(rendered), 0o644))

	r := New(v, clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)), zap.NewNop())
	require.NoError(t, r.WeeklyAudit())

	entries, err := v.List(vault.Briefings)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	content, err := os.ReadFile(entries[0].Path)
	require.NoError(t, err)
	require.Contains(t, string(content), "APPROVAL_overdue_20200101000000")
}

func countOccurrences(s, substr string) int {
	n := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			n++
		}
	}
	return n
}
