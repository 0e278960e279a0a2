// Package eventlog implements the vault's append-only audit ledger: one
// JSON-lines file per calendar date under Logs/, written with
// line-buffered, fsync-per-write semantics.
//
// Reference: spec.md §3.4 Log Record, §4.2 Event Log.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultwork/orchestrator/pkg/clock"
)

// Record is one line of the audit ledger.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Actor     string `json:"actor"`
	File      string `json:"file,omitempty"`
	Action    string `json:"action,omitempty"`
	Result    string `json:"result"`
	Detail    string `json:"detail,omitempty"`
}

// Logger appends Records to Logs/YYYY-MM-DD.jsonl, rotating lazily at
// midnight local time on first write of a new day. A fresh file is only
// created when the first write of the day actually happens — not eagerly
// at startup.
type Logger struct {
	dir   string
	clock clock.Clock

	mu      sync.Mutex
	curDate string
	f       *os.File
}

// NewLogger returns a Logger writing under dir (typically <vault>/Logs).
func NewLogger(dir string, clk clock.Clock) *Logger {
	return &Logger{dir: dir, clock: clk}
}

// Append writes one record as a single JSON line and fsyncs before
// returning, so readers never observe a partial line.
func (l *Logger) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if rec.Timestamp == "" {
		rec.Timestamp = now.Format(time.RFC3339)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("eventlog: marshal record: %w", err)
	}
	line = append(line, '\n')

	if err := l.ensureFile(now); err != nil {
		return err
	}

	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("eventlog: write record: %w", err)
	}
	return l.f.Sync()
}

// ensureFile opens (creating if necessary) the log file for the day
// containing now, rotating from any previously open file.
func (l *Logger) ensureFile(now time.Time) error {
	date := now.Format("2006-01-02")
	if l.f != nil && date == l.curDate {
		return nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("eventlog: create log dir: %w", err)
	}

	path := filepath.Join(l.dir, date+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventlog: open %s: %w", path, err)
	}

	l.f = f
	l.curDate = date
	return nil
}

// Close flushes and closes the currently open log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Path returns the path of the currently open log file, or "" if none is open yet.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ""
	}
	return l.f.Name()
}
