package syncbridge

import (
	"strings"

	"github.com/vaultwork/orchestrator/internal/vault"
)

// ConflictPolicy names how a merge conflict touching a given top-level
// vault directory is resolved, per spec.md §4.9.
type ConflictPolicy int

const (
	// PolicyPreferRemote keeps the remote (cloud-authoritative) version.
	PolicyPreferRemote ConflictPolicy = iota
	// PolicyPreferLocalCoexist keeps both sides when stems differ, and the
	// local version for any same-stem collision (this peer's own writes).
	PolicyPreferLocalCoexist
	// PolicyUnionByStatus keeps both sides' distinct stems; for a same-stem
	// collision the file whose status ranks later in the note lifecycle
	// wins (Approved beats pending).
	PolicyUnionByStatus
	// PolicyNeverSync means the path must never be committed or pushed at all.
	PolicyNeverSync
)

// DirectoryPolicies is the default per-directory conflict policy table
// from spec.md §4.9.
var DirectoryPolicies = map[vault.Stage]ConflictPolicy{
	vault.NeedsAction:     PolicyPreferRemote,
	vault.Signals:         PolicyPreferRemote,
	vault.Done:            PolicyPreferLocalCoexist,
	vault.Rejected:        PolicyPreferLocalCoexist,
	vault.Logs:            PolicyPreferLocalCoexist,
	vault.PendingApproval: PolicyUnionByStatus,
	vault.Approved:        PolicyUnionByStatus,
}

// NeverSyncedPaths lists root-relative paths never committed by the
// bridge, per spec.md §4.9 ("Dashboard, .env, session caches").
var NeverSyncedPaths = []string{
	vault.DashboardFile,
	".env",
}

// PolicyFor resolves which ConflictPolicy applies to a repo-relative path,
// by matching its leading path segment against a known stage directory.
// Paths outside the named stage table (singleton files, In_Progress/*,
// Plans/, Briefings/, Accounting/) default to PolicyPreferLocalCoexist:
// distinct per-peer stems rarely collide, and local writes should not be
// silently discarded when they do.
func PolicyFor(relPath string) ConflictPolicy {
	for _, never := range NeverSyncedPaths {
		if relPath == never {
			return PolicyNeverSync
		}
	}
	top := relPath
	if idx := strings.IndexByte(relPath, '/'); idx >= 0 {
		top = relPath[:idx]
	}
	if policy, ok := DirectoryPolicies[vault.Stage(top)]; ok {
		return policy
	}
	return PolicyPreferLocalCoexist
}

// statusRank orders lifecycle statuses so PolicyUnionByStatus can pick a
// winner: later-stage statuses beat earlier ones (spec.md §4.9: "Approved
// beats pending").
var statusRank = map[string]int{
	vault.StatusPending:    0,
	vault.StatusInProgress: 1,
	vault.StatusApproved:   2,
	vault.StatusRejected:   3,
	vault.StatusDone:       3,
}

// rankOf returns a status's rank, defaulting unknown statuses to the
// lowest rank so a recognized status always outranks garbage input.
func rankOf(status string) int {
	if r, ok := statusRank[status]; ok {
		return r
	}
	return -1
}
