package adapter

import (
	"context"
	"sync"

	"github.com/vaultwork/orchestrator/internal/retry"
	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// AccountingTransport performs one accounting action (create/post an
// invoice). The real implementation is an ERP JSON-RPC client, explicitly
// out of scope per spec.md §1 — only AccountingRecordingTransport is provided.
type AccountingTransport interface {
	Act(ctx context.Context, action string, payload map[string]any) (recordID string, err error)
}

// AccountingRecordingTransport records accounting actions instead of performing them.
type AccountingRecordingTransport struct {
	mu      sync.Mutex
	Actions []RecordedAccountingAction
	Err     error
}

// RecordedAccountingAction captures one call to an AccountingRecordingTransport.
type RecordedAccountingAction struct {
	Action  string
	Payload map[string]any
}

func (t *AccountingRecordingTransport) Act(ctx context.Context, action string, payload map[string]any) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return "", t.Err
	}
	t.Actions = append(t.Actions, RecordedAccountingAction{Action: action, Payload: payload})
	return action, nil
}

// AccountingAdapter dispatches notes of type "odoo_action", gated by the
// "payment" channel (3/day per spec.md §4.3) since every accounting
// action in scope moves money or creates a payable.
type AccountingAdapter struct {
	transport AccountingTransport
	bucket    *retry.TokenBucket

	mu         sync.Mutex
	dispatched map[string]bool
}

// NewAccountingAdapter builds an AccountingAdapter.
func NewAccountingAdapter(transport AccountingTransport, bucket *retry.TokenBucket) *AccountingAdapter {
	return &AccountingAdapter{transport: transport, bucket: bucket, dispatched: make(map[string]bool)}
}

// Applies matches notes of type "odoo_action".
func (a *AccountingAdapter) Applies(noteType, action string) bool {
	return noteType == "odoo_action"
}

// Dispatch performs the accounting action, acquiring a rate-limit token first.
func (a *AccountingAdapter) Dispatch(ctx context.Context, entry vault.Entry, note vault.Note) (Outcome, error) {
	a.mu.Lock()
	if a.dispatched[entry.Stem] {
		a.mu.Unlock()
		return Sent, nil
	}
	a.mu.Unlock()

	if a.bucket != nil {
		if err := a.bucket.TryAcquire("payment"); err != nil {
			return Deferred, err
		}
	}

	if _, err := a.transport.Act(ctx, note.Preamble.Action, note.Preamble.Extra); err != nil {
		if vaulterrors.Classify(err) == vaulterrors.KindTransient {
			return Deferred, err
		}
		return Rejected, err
	}

	a.mu.Lock()
	a.dispatched[entry.Stem] = true
	a.mu.Unlock()
	return Sent, nil
}
