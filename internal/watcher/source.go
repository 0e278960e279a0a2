// Package watcher implements the common watcher-framework loop shared by
// every source-specific watcher process: poll a source at a cadence,
// dedup against a persisted seen-set, emit one action note per new item,
// wrap every source call in backoff + circuit breaker, and rate-limit the
// emission of new items (spec.md §4.4).
package watcher

import (
	"context"

	"github.com/vaultwork/orchestrator/internal/vault"
)

// Item is one unit a Source reports as new. ID is the source-native
// identifier used for dedup (an email Message-ID, a DM id, a feed GUID,
// ...); it is never the vault stem.
type Item struct {
	ID    string
	Kind  vault.Kind
	Topic string
	Ext   string
	Note  vault.Note
}

// Source is one external origin a watcher polls: a mailbox, a social
// inbox, a filesystem directory, a webhook queue drained on a timer.
// Poll returns every item the source currently reports; the watcher
// loop is responsible for deduping against items already seen.
type Source interface {
	// Name identifies the source for logging, rate-limit channel
	// selection, and circuit-breaker resource naming.
	Name() string

	// Poll fetches the current batch of items from the source. A
	// transient failure (network blip, 5xx) should be one of the
	// vaulterrors transient sentinels (or wrap one); a permanent
	// failure (bad credentials, schema drift) one of the permanent
	// sentinels.
	Poll(ctx context.Context) ([]Item, error)
}
