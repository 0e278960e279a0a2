// Package adapter implements the uniform adapter contract: consume one
// approved file, perform an external side-effect, report an outcome
// (spec.md §4.5). The side-effect is the commit point — on success the
// file moves to Done/; on transient failure it stays in Approved/ and
// reports deferred; on permanent failure it moves to Rejected/ with a
// sibling error record.
package adapter

import (
	"context"

	"github.com/vaultwork/orchestrator/internal/vault"
)

// Outcome is the result of one dispatch attempt.
type Outcome string

const (
	Sent     Outcome = "sent"
	Drafted  Outcome = "drafted"
	Rejected Outcome = "rejected"
	Deferred Outcome = "deferred"
)

// Adapter performs the external side-effect for one note. Implementations
// must be idempotent keyed on the note's stem: Dispatch may be called
// more than once for the same file (e.g. after a crash mid-dispatch) and
// must never perform the side-effect twice.
type Adapter interface {
	// Applies reports whether this adapter handles notes with the given
	// type/action pair, read from the note's preamble.
	Applies(noteType, action string) bool

	// Dispatch performs the side-effect for entry/note and returns the
	// outcome. A transient failure should wrap one of
	// vaulterrors.ErrUnavailable et al.; a permanent failure one of the
	// permanent sentinels.
	Dispatch(ctx context.Context, entry vault.Entry, note vault.Note) (Outcome, error)
}
