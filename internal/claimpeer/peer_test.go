package claimpeer

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

func newTestVault(t *testing.T, clk clock.Clock) *vault.Vault {
	t.Helper()
	root := t.TempDir()
	log := eventlog.NewLogger(filepath.Join(root, "Logs"), clk)
	t.Cleanup(func() { _ = log.Close() })
	v, err := vault.New(root, clk, log)
	require.NoError(t, err)
	return v
}

func emitNeedsAction(t *testing.T, v *vault.Vault, action string) (string, vault.Note) {
	t.Helper()
	note := vault.Note{
		Preamble: vault.Preamble{
			Type: "email", Action: action, Priority: vault.PriorityP2,
			Status: vault.StatusPending, Created: v.Clock.Now(),
		},
		Body: "hi",
	}
	e, err := v.Emit(vault.NeedsAction, vault.KindEmail, "topic", note, ".md")
	require.NoError(t, err)
	return e.Stem, note
}

func TestTryClaimWinsInZone(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	stem, note := emitNeedsAction(t, v, "send_email")

	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerLocal})
	result, err := p.TryClaim(stem, note)
	require.NoError(t, err)
	require.Equal(t, ClaimWon, result)

	_, ok, err := v.Find(vault.Stage("In_Progress/local"), stem)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryClaimReleasesOutOfZone(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	stem, note := emitNeedsAction(t, v, "draft")

	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerLocal})
	result, err := p.TryClaim(stem, note)
	require.NoError(t, err)
	require.Equal(t, ClaimOutOfZone, result)

	_, ok, err := v.Find(vault.NeedsAction, stem)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryClaimCloudAcceptsDraft(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	stem, note := emitNeedsAction(t, v, "draft")

	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerCloud})
	result, err := p.TryClaim(stem, note)
	require.NoError(t, err)
	require.Equal(t, ClaimWon, result)

	_, ok, err := v.Find(vault.Stage("In_Progress/cloud"), stem)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryClaimLostWhenAlreadyClaimed(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	stem, note := emitNeedsAction(t, v, "send_email")

	// Another peer wins first.
	_, err := v.Claim(vault.NeedsAction, stem, vault.PeerCloud)
	require.NoError(t, err)

	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerLocal})
	result, err := p.TryClaim(stem, note)
	require.NoError(t, err)
	require.Equal(t, ClaimLost, result)
}

func TestSweepStaleMovesOldEntriesBack(t *testing.T) {
	clk := clock.NewMutable(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	stem, _ := emitNeedsAction(t, v, "draft")

	_, err := v.Claim(vault.NeedsAction, stem, vault.PeerCloud)
	require.NoError(t, err)

	// Backdate the claimed file's mtime to simulate a stale claim.
	claimedPath := filepath.Join(v.Layout.PeerDir(vault.PeerCloud), stem+".md")
	old := clk.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(claimedPath, old, old))

	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerLocal, ClaimTTL: 10 * time.Minute})
	swept, err := p.SweepStale(vault.PeerCloud)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	_, ok, err := v.Find(vault.NeedsAction, stem)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = v.Find(vault.Stage("In_Progress/cloud"), stem)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSweepStaleLeavesFreshEntries(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	stem, _ := emitNeedsAction(t, v, "draft")

	_, err := v.Claim(vault.NeedsAction, stem, vault.PeerCloud)
	require.NoError(t, err)

	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerLocal, ClaimTTL: 10 * time.Minute})
	swept, err := p.SweepStale(vault.PeerCloud)
	require.NoError(t, err)
	require.Equal(t, 0, swept)

	_, ok, err := v.Find(vault.Stage("In_Progress/cloud"), stem)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweepStaleOnMissingPeerDirIsNoop(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC))
	v := newTestVault(t, clk)
	p := New(v, clk, zap.NewNop(), Config{Self: vault.PeerLocal})
	swept, err := p.SweepStale(vault.PeerCloud)
	require.NoError(t, err)
	require.Equal(t, 0, swept)
}

func TestDefaultWorkZone(t *testing.T) {
	require.True(t, DefaultWorkZone(vault.PeerLocal, "send_email"))
	require.False(t, DefaultWorkZone(vault.PeerLocal, "draft"))
	require.True(t, DefaultWorkZone(vault.PeerCloud, "draft"))
	require.False(t, DefaultWorkZone(vault.PeerCloud, "send_email"))
}
