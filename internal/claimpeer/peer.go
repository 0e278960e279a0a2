// Package claimpeer implements the cloud/local claim protocol: two peer
// orchestrators sharing one vault via a git remote, coordinating through
// the claim-by-move primitive alone (spec.md §4.8). It builds entirely on
// internal/vault's Claim/Release/List — the work-zone check and the
// stale-claim sweep are the genuinely distinct logic this package adds.
package claimpeer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// WorkZone decides whether a peer may act on a claimed note's action verb.
// Per spec.md §4.8, a peer's work zone is defined by the preamble's
// `action` field: only the local peer sends email or posts externally;
// only the cloud peer drafts.
type WorkZone func(peer, action string) bool

// DefaultWorkZone implements the split named in spec.md §4.8 and §4.10:
// the cloud peer only drafts (never performs an external side-effect or
// writes Dashboard/Done); the local peer handles everything else.
func DefaultWorkZone(peer, action string) bool {
	isDraftAction := action == "draft" || action == "create_draft"
	if peer == vault.PeerCloud {
		return isDraftAction
	}
	return !isDraftAction
}

// Peer claims from Needs_Action/ on behalf of one of the two peer
// identities, releasing out-of-zone claims immediately and sweeping stale
// claims left by a crashed counterpart.
type Peer struct {
	v        *vault.Vault
	self     string
	zone     WorkZone
	claimTTL time.Duration
	clk      clock.Clock
	log      *zap.Logger
}

// Config configures a Peer.
type Config struct {
	Self     string // vault.PeerLocal or vault.PeerCloud
	Zone     WorkZone
	ClaimTTL time.Duration // stale In_Progress/<peer> entries older than this are swept
}

// New builds a Peer. Zone defaults to DefaultWorkZone; ClaimTTL defaults
// to 10 minutes.
func New(v *vault.Vault, clk clock.Clock, log *zap.Logger, cfg Config) *Peer {
	if cfg.Zone == nil {
		cfg.Zone = DefaultWorkZone
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	return &Peer{v: v, self: cfg.Self, zone: cfg.Zone, claimTTL: cfg.ClaimTTL, clk: clk, log: log}
}

// ClaimResult reports what happened to one stem during a claim attempt.
type ClaimResult int

const (
	// ClaimWon means self now owns the stem in In_Progress/<self>.
	ClaimWon ClaimResult = iota
	// ClaimLost means another peer already claimed it first.
	ClaimLost
	// ClaimOutOfZone means self claimed it but immediately released it back
	// to Needs_Action/ because the action is not in self's work zone.
	ClaimOutOfZone
)

// TryClaim attempts to claim one stem from Needs_Action/ on self's behalf.
// If the claimed note's action falls outside self's work zone, the claim
// is released back to Needs_Action/ immediately (spec.md §4.8) so the
// other peer can pick it up.
func (p *Peer) TryClaim(stem string, note vault.Note) (ClaimResult, error) {
	entry, err := p.v.Claim(vault.NeedsAction, stem, p.self)
	if err != nil {
		if errors.Is(err, vaulterrors.ErrClaimLost) {
			return ClaimLost, nil
		}
		return ClaimLost, err
	}

	if p.zone(p.self, note.Preamble.Action) {
		p.log.Info("claimpeer: claimed in zone",
			zap.String("peer", p.self), zap.String("stem", entry.Stem), zap.String("action", note.Preamble.Action))
		return ClaimWon, nil
	}

	if _, err := p.v.Release(p.self, stem, vault.NeedsAction); err != nil {
		return ClaimWon, fmt.Errorf("claimpeer: release out-of-zone claim %s: %w", stem, err)
	}
	p.log.Info("claimpeer: released out-of-zone claim",
		zap.String("peer", p.self), zap.String("stem", entry.Stem), zap.String("action", note.Preamble.Action))
	return ClaimOutOfZone, nil
}

// SweepStale scans the *other* peer's In_Progress subdirectory and moves
// back to Needs_Action/ any entry whose file has not been modified within
// claimTTL, recovering work abandoned by a crashed counterpart (spec.md
// §4.8). It never touches its own In_Progress directory.
func (p *Peer) SweepStale(other string) (int, error) {
	dir := p.v.Layout.PeerDir(other)
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("claimpeer: read peer dir %s: %w", dir, err)
	}

	now := p.clk.Now()
	swept := 0
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		fi, err := info.Info()
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) < p.claimTTL {
			continue
		}

		ext := filepath.Ext(info.Name())
		stem := strings.TrimSuffix(info.Name(), ext)

		if _, err := p.v.Release(other, stem, vault.NeedsAction); err != nil {
			p.log.Warn("claimpeer: stale sweep release failed",
				zap.String("peer", other), zap.String("stem", stem), zap.Error(err))
			continue
		}
		p.log.Info("claimpeer: swept stale claim", zap.String("peer", other), zap.String("stem", stem))
		swept++
	}
	return swept, nil
}
