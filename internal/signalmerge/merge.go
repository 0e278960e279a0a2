// Package signalmerge reads peer status signals and rewrites the bounded
// region of Dashboard.md they summarize (spec.md §4.10).
package signalmerge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/vault"
)

const (
	beginFence = "<!-- VAULT:SIGNALS:BEGIN -->"
	endFence   = "<!-- VAULT:SIGNALS:END -->"

	cloudStatusPrefix = "CLOUD_STATUS_"
	syncStatusName    = "SYNC_STATUS.md"
)

// Merger reads Signals/ and rewrites Dashboard's bounded region.
type Merger struct {
	v   *vault.Vault
	log *zap.Logger
}

// New builds a Merger.
func New(v *vault.Vault, log *zap.Logger) *Merger {
	return &Merger{v: v, log: log}
}

// Run reads every Signals/CLOUD_STATUS_* and Signals/SYNC_STATUS file,
// summarizes them, and rewrites the bounded region of Dashboard.md,
// leaving the rest of the file untouched.
func (m *Merger) Run(now time.Time) error {
	entries, err := m.v.List(vault.Signals)
	if err != nil {
		return fmt.Errorf("signalmerge: list signals: %w", err)
	}

	var cloudStatuses []string
	var syncStatus string
	for _, e := range entries {
		content, err := os.ReadFile(e.Path)
		if err != nil {
			m.log.Warn("signalmerge: failed to read signal", zap.String("path", e.Path), zap.Error(err))
			continue
		}
		name := e.Name()
		switch {
		case strings.HasPrefix(name, cloudStatusPrefix):
			cloudStatuses = append(cloudStatuses, summarizeCloudStatus(e.Stem, string(content)))
		case name == syncStatusName:
			syncStatus = summarizeSyncStatus(string(content))
		}
	}
	sort.Strings(cloudStatuses)

	region := renderRegion(now, cloudStatuses, syncStatus)
	return m.rewriteDashboard(region)
}

func summarizeCloudStatus(stem, content string) string {
	note, err := vault.ParseNote(content)
	if err != nil {
		return fmt.Sprintf("- %s: unreadable", stem)
	}
	return fmt.Sprintf("- %s: %s (%s)", stem, note.Preamble.Status, note.Preamble.Action)
}

func summarizeSyncStatus(content string) string {
	note, err := vault.ParseNote(content)
	if err != nil {
		return "sync: unreadable"
	}
	return fmt.Sprintf("sync: %s", strings.TrimSpace(note.Body))
}

func renderRegion(now time.Time, cloudStatuses []string, syncStatus string) string {
	var b strings.Builder
	b.WriteString(beginFence)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "_Last merged: %s_\n\n", now.UTC().Format(time.RFC3339))

	if len(cloudStatuses) == 0 {
		b.WriteString("No cloud peer activity.\n")
	} else {
		b.WriteString("**Cloud peer activity:**\n")
		for _, s := range cloudStatuses {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}

	if syncStatus != "" {
		b.WriteByte('\n')
		b.WriteString(syncStatus)
		b.WriteByte('\n')
	}

	b.WriteString(endFence)
	return b.String()
}

// rewriteDashboard replaces the text between the two fences with region,
// appending a fresh fenced block at the end if neither fence is present
// yet. The rest of the file — everything outside the fences — is never
// touched. Writes via temp-file-then-rename (spec.md §5).
func (m *Merger) rewriteDashboard(region string) error {
	path := m.v.Layout.SingletonPath(vault.DashboardFile)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("signalmerge: read dashboard: %w", err)
	}

	var rendered string
	content := string(existing)
	beginIdx := strings.Index(content, beginFence)
	endIdx := strings.Index(content, endFence)

	if beginIdx >= 0 && endIdx >= 0 && endIdx > beginIdx {
		rendered = content[:beginIdx] + region + content[endIdx+len(endFence):]
	} else {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		rendered = content + region + "\n"
	}

	return writeAtomic(filepath.Dir(path), filepath.Base(path), rendered)
}

func writeAtomic(dir, name, content string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}
