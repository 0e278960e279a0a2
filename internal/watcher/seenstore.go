package watcher

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SeenStore is the dedup sidecar spec.md §4.4 requires: "a small sidecar
// map (seen-set); never emit twice for the same id." Backed by
// modernc.org/sqlite (pure Go, no cgo) so the sidecar survives watcher
// restarts without depending on a system sqlite3 library.
type SeenStore struct {
	db     *sql.DB
	source string
}

// NewSeenStore opens (creating if necessary) a seen-set sidecar at path,
// scoped to one source name so multiple watchers can share a sidecar
// file without id collisions across sources.
func NewSeenStore(path, source string) (*SeenStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("watcher: open seen-set sidecar %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS seen (
	source TEXT NOT NULL,
	item_id TEXT NOT NULL,
	PRIMARY KEY (source, item_id)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("watcher: create seen-set schema: %w", err)
	}
	return &SeenStore{db: db, source: source}, nil
}

// Seen reports whether id has already been recorded for this store's source.
func (s *SeenStore) Seen(id string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM seen WHERE source = ? AND item_id = ?`, s.source, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("watcher: check seen-set: %w", err)
	}
	return count > 0, nil
}

// MarkSeen records id as seen. Idempotent: marking an already-seen id is a no-op.
func (s *SeenStore) MarkSeen(id string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO seen (source, item_id) VALUES (?, ?)`, s.source, id)
	if err != nil {
		return fmt.Errorf("watcher: mark seen: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SeenStore) Close() error {
	return s.db.Close()
}
