package orchestrator

import (
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// ExpirySweep periodically scans Pending_Approval/ and Approved/ for
// notes whose `expires` deadline has passed and moves them to Rejected/
// with an error sibling, independent of the router's own per-dispatch
// expiry check (spec.md §3.2: "auto-rejected" after expiry; §7 policy
// handling).
type ExpirySweep struct {
	v   *vault.Vault
	clk clock.Clock
	log *zap.Logger
}

// NewExpirySweep builds an ExpirySweep.
func NewExpirySweep(v *vault.Vault, clk clock.Clock, log *zap.Logger) *ExpirySweep {
	return &ExpirySweep{v: v, clk: clk, log: log}
}

// stagesSwept are the stages where an expired note should not be allowed
// to linger waiting for a human decision that will never come.
var stagesSwept = []vault.Stage{vault.PendingApproval, vault.Approved}

// Run performs one sweep pass across the swept stages.
func (s *ExpirySweep) Run() {
	now := s.clk.Now()
	for _, stage := range stagesSwept {
		entries, err := s.v.List(stage)
		if err != nil {
			s.log.Error("expiry sweep: list failed", zap.String("stage", string(stage)), zap.Error(err))
			continue
		}
		for _, e := range entries {
			s.sweepOne(stage, e, now)
		}
	}
}

func (s *ExpirySweep) sweepOne(stage vault.Stage, e vault.Entry, now time.Time) {
	note, err := readNote(e.Path)
	if err != nil {
		s.log.Error("expiry sweep: read note failed", zap.String("stem", e.Stem), zap.Error(err))
		return
	}
	if !note.Preamble.IsExpired(now) {
		return
	}

	if _, err := s.v.MoveAs(stage, vault.Rejected, e.Stem, "approval_expired"); err != nil {
		s.log.Error("expiry sweep: move to Rejected failed", zap.String("stem", e.Stem), zap.Error(err))
		return
	}
	errPath := filepath.Join(s.v.Layout.StageDir(vault.Rejected), e.Stem+"_error.md")
	_ = writeErrorSibling(errPath, e.Stem, vaulterrors.ErrExpired)
	s.log.Info("expiry sweep: rejected expired note", zap.String("stem", e.Stem), zap.String("from", string(stage)))
}
