// Package orchestrator implements the router that watches Approved/,
// re-checks policy, dispatches to an adapter, and records the outcome
// (spec.md §4.6). Each scan calls the adapter's Dispatch once per file;
// no backoff or circuit breaker wraps that call, and a file the adapter
// reports as deferred is tried again on a later scan once its cooldown
// has passed.
package orchestrator

import (
	"strings"
	"time"

	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// PolicyConfig carries the thresholds the gate enforces. cmd/orchestratord
// fills AmountThreshold from internal/config's policy.amount_threshold
// (optional YAML file, default 100); Company_Handbook.md is not read.
// Tests construct PolicyConfig directly.
type PolicyConfig struct {
	// AmountThreshold is the amount above which a note must already
	// carry approval-stage provenance (spec.md scenario: "amount > 100
	// without a matching prior-approval record").
	AmountThreshold float64
}

// DefaultPolicyConfig matches the literal threshold from spec.md's
// worked scenarios.
var DefaultPolicyConfig = PolicyConfig{AmountThreshold: 100}

// PolicyGate re-checks handbook rules on a file even though it already
// resides in Approved/ (spec.md §4.6 step 3): amount thresholds, expiry.
// Rate limiting is enforced by internal/retry's token buckets at dispatch
// time, not here.
type PolicyGate struct {
	cfg PolicyConfig
}

// NewPolicyGate builds a PolicyGate from cfg.
func NewPolicyGate(cfg PolicyConfig) *PolicyGate {
	return &PolicyGate{cfg: cfg}
}

// approvalPrefix marks a stem as having passed through Pending_Approval/
// under the reasoning layer's own approval-kind naming (spec.md §3.3's
// APPROVAL_* kind), which the gate treats as prior-approval provenance.
const approvalPrefix = "APPROVAL_"

// Check returns a policy error (vaulterrors taxonomy) if the note should
// not proceed to dispatch, or nil if it may.
func (g *PolicyGate) Check(stem string, note vault.Note, now time.Time) error {
	if note.Preamble.IsExpired(now) {
		return vaulterrors.ErrExpired
	}

	amount, hasAmount := amountOf(note)
	if hasAmount && amount > g.cfg.AmountThreshold && !strings.HasPrefix(stem, approvalPrefix) {
		return vaulterrors.ErrOverThreshold
	}

	return nil
}

func amountOf(note vault.Note) (float64, bool) {
	raw, ok := note.Preamble.Extra["amount"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
