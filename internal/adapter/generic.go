package adapter

import (
	"context"

	"github.com/vaultwork/orchestrator/internal/vault"
)

// Generic is the fallback adapter for any note that no specific adapter
// claims: it performs no side-effect, only logs and reports Sent so the
// orchestrator router moves the file straight to Done/ (spec.md §4.5).
type Generic struct{}

// NewGeneric returns the fallback adapter.
func NewGeneric() *Generic { return &Generic{} }

// Applies always returns true: Registry tries Generic last as the catch-all.
func (g *Generic) Applies(noteType, action string) bool { return true }

// Dispatch performs no external effect; the note is considered handled.
func (g *Generic) Dispatch(ctx context.Context, entry vault.Entry, note vault.Note) (Outcome, error) {
	return Sent, nil
}
