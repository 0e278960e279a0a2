package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultwork/orchestrator/pkg/clock"
)

func TestAppendWritesOneLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFixed(time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC))
	l := NewLogger(dir, clk)
	defer l.Close()

	require.NoError(t, l.Append(Record{EventType: "file_drop", Actor: "watcher", File: "FILE_note_20250304090000", Result: "ok"}))
	require.NoError(t, l.Append(Record{EventType: "send_email", Actor: "orchestrator", File: "EMAIL_x_20250304090001", Result: "sent"}))

	path := filepath.Join(dir, "2025-03-04.jsonl")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "file_drop", rec.EventType)
	require.NotEmpty(t, rec.ID)
	require.NotEmpty(t, rec.Timestamp)
}

func TestAppendRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	mut := clock.NewMutable(time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC))
	l := NewLogger(dir, mut)
	defer l.Close()

	require.NoError(t, l.Append(Record{EventType: "a", Actor: "x", Result: "ok"}))
	mut.Advance(2 * time.Minute) // crosses midnight
	require.NoError(t, l.Append(Record{EventType: "b", Actor: "x", Result: "ok"}))

	_, err := os.Stat(filepath.Join(dir, "2025-03-04.jsonl"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "2025-03-05.jsonl"))
	require.NoError(t, err)
}

func TestAppendDoesNotCreateFileEagerly(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewFixed(time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC))
	_ = NewLogger(dir, clk)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
