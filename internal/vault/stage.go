// Package vault implements the directory-as-queue protocol: the vault's
// canonical stage layout, filename conventions, the action-note
// frontmatter schema, and the atomic move/claim/release/emit/list
// primitives that are the system's only concurrency discipline.
//
// Reference: spec.md §3 Data Model, §4.1 Vault Operations.
package vault

import "path/filepath"

// Stage names one of the vault's queue directories.
type Stage string

// The canonical set of stage directories, per spec.md §3.1.
const (
	Inbox           Stage = "Inbox"
	NeedsAction     Stage = "Needs_Action"
	InProgress      Stage = "In_Progress" // parent of per-peer subdirectories
	Plans           Stage = "Plans"
	PendingApproval Stage = "Pending_Approval"
	Approved        Stage = "Approved"
	Rejected        Stage = "Rejected"
	Done            Stage = "Done"
	Logs            Stage = "Logs"
	Briefings       Stage = "Briefings"
	Accounting      Stage = "Accounting"
	Signals         Stage = "Signals"
)

// AllStages lists every stage directory that must exist under the vault
// root (InProgress is a parent only; its per-peer children are created on
// demand by Claim).
var AllStages = []Stage{
	Inbox, NeedsAction, InProgress, Plans, PendingApproval,
	Approved, Rejected, Done, Logs, Briefings, Accounting, Signals,
}

// TerminalStages are absorbing: nothing leaves them (spec.md §3.5 I3).
var TerminalStages = map[Stage]bool{
	Done:     true,
	Rejected: true,
}

// Singleton files living directly under the vault root (spec.md §3.1).
const (
	DashboardFile       = "Dashboard.md"
	CompanyHandbookFile = "Company_Handbook.md"
	BusinessGoalsFile   = "Business_Goals.md"
)

// Layout resolves stage and singleton paths relative to a vault root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// StageDir returns the absolute path of a top-level stage directory.
func (l Layout) StageDir(s Stage) string {
	return filepath.Join(l.Root, string(s))
}

// PeerDir returns the absolute path of a peer's In_Progress subdirectory,
// e.g. In_Progress/local or In_Progress/cloud.
func (l Layout) PeerDir(peer string) string {
	return filepath.Join(l.Root, string(InProgress), peer)
}

// SingletonPath returns the absolute path of one of the vault's singleton files.
func (l Layout) SingletonPath(name string) string {
	return filepath.Join(l.Root, name)
}

// Peers enumerates the two peer identities the claim protocol recognizes
// (spec.md §4.8).
const (
	PeerLocal = "local"
	PeerCloud = "cloud"
)
