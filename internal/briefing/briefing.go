// Package briefing implements the scheduler's reporting jobs:
// dashboard-refresh rewrites a bounded stats region of Dashboard.md, and
// morning-briefing/weekly-audit emit summary notes into Briefings/
// (spec.md §4.7's built-in job table; the notes themselves are this
// implementation's supplement to the distilled spec, grounded on
// signalmerge's fenced-region rewrite for the former and on
// vault.Emit for the latter).
package briefing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vaultwork/orchestrator/internal/vault"
	"github.com/vaultwork/orchestrator/pkg/clock"
)

const (
	statsBeginFence = "<!-- VAULT:STATS:BEGIN -->"
	statsEndFence   = "<!-- VAULT:STATS:END -->"
)

// countedStages lists every queue stage dashboard-refresh reports a depth
// for. In_Progress is reported separately, per peer, since its files live
// in per-peer subdirectories rather than directly under the stage.
var countedStages = []vault.Stage{
	vault.Inbox, vault.NeedsAction, vault.Plans, vault.PendingApproval,
	vault.Approved, vault.Rejected, vault.Done,
}

// Reporter builds dashboard stats and periodic briefing notes from the
// vault's current stage depths.
type Reporter struct {
	v   *vault.Vault
	clk clock.Clock
	log *zap.Logger
}

// New builds a Reporter.
func New(v *vault.Vault, clk clock.Clock, log *zap.Logger) *Reporter {
	return &Reporter{v: v, clk: clk, log: log}
}

func (r *Reporter) stageDepths() (map[vault.Stage]int, error) {
	depths := make(map[vault.Stage]int, len(countedStages)+2)
	for _, s := range countedStages {
		entries, err := r.v.List(s)
		if err != nil {
			return nil, fmt.Errorf("briefing: list %s: %w", s, err)
		}
		depths[s] = len(entries)
	}
	return depths, nil
}

func peerDepth(v *vault.Vault, peer string) int {
	infos, err := os.ReadDir(v.Layout.PeerDir(peer))
	if err != nil {
		return 0
	}
	n := 0
	for _, info := range infos {
		if !info.IsDir() {
			n++
		}
	}
	return n
}

// RefreshDashboard rewrites the bounded stats region of Dashboard.md with
// current stage depths, leaving the rest of the file (including
// signalmerge's own fenced region) untouched.
func (r *Reporter) RefreshDashboard() error {
	depths, err := r.stageDepths()
	if err != nil {
		return err
	}
	localDepth := peerDepth(r.v, vault.PeerLocal)
	cloudDepth := peerDepth(r.v, vault.PeerCloud)

	var b strings.Builder
	b.WriteString(statsBeginFence)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "_Last refreshed: %s_\n\n", r.clk.Now().UTC().Format(time.RFC3339))
	b.WriteString("| Stage | Count |\n|---|---|\n")
	for _, s := range countedStages {
		fmt.Fprintf(&b, "| %s | %d |\n", s, depths[s])
	}
	fmt.Fprintf(&b, "| In_Progress/local | %d |\n", localDepth)
	fmt.Fprintf(&b, "| In_Progress/cloud | %d |\n", cloudDepth)
	b.WriteString(statsEndFence)

	return r.rewriteDashboardRegion(b.String())
}

func (r *Reporter) rewriteDashboardRegion(region string) error {
	path := r.v.Layout.SingletonPath(vault.DashboardFile)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("briefing: read dashboard: %w", err)
	}

	content := string(existing)
	beginIdx := strings.Index(content, statsBeginFence)
	endIdx := strings.Index(content, statsEndFence)

	var rendered string
	if beginIdx >= 0 && endIdx >= 0 && endIdx > beginIdx {
		rendered = content[:beginIdx] + region + content[endIdx+len(statsEndFence):]
	} else {
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		rendered = content + region + "\n"
	}

	return writeAtomic(filepath.Dir(path), filepath.Base(path), rendered)
}

// MorningBriefing emits one BRIEFING_ note into Briefings/ listing the
// per-stage queue depths and every Needs_Action/ or Pending_Approval/
// note past its expires deadline.
func (r *Reporter) MorningBriefing() error {
	return r.emitBriefing("morning_briefing", "Morning Briefing")
}

// WeeklyAudit emits one BRIEFING_ note into Briefings/ with the same
// per-stage depths and overdue list as MorningBriefing, under its own
// topic and title.
func (r *Reporter) WeeklyAudit() error {
	return r.emitBriefing("weekly_audit", "Weekly Audit")
}

func (r *Reporter) emitBriefing(topic, title string) error {
	depths, err := r.stageDepths()
	if err != nil {
		return err
	}

	var overdue []string
	for _, s := range []vault.Stage{vault.NeedsAction, vault.PendingApproval} {
		entries, err := r.v.List(s)
		if err != nil {
			continue
		}
		for _, e := range entries {
			content, err := os.ReadFile(e.Path)
			if err != nil {
				continue
			}
			note, err := vault.ParseNote(string(content))
			if err != nil {
				continue
			}
			if note.Preamble.IsExpired(r.clk.Now()) {
				overdue = append(overdue, e.Stem)
			}
		}
	}
	sort.Strings(overdue)

	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", title)
	body.WriteString("## Queue depths\n\n")
	for _, s := range countedStages {
		fmt.Fprintf(&body, "- %s: %d\n", s, depths[s])
	}
	body.WriteString("\n## Overdue\n\n")
	if len(overdue) == 0 {
		body.WriteString("None.\n")
	} else {
		for _, stem := range overdue {
			fmt.Fprintf(&body, "- %s\n", stem)
		}
	}

	note := vault.Note{
		Preamble: vault.Preamble{
			Type:     "briefing",
			Action:   "record",
			Priority: vault.PriorityP3,
			Status:   vault.StatusDone,
			Created:  r.clk.Now(),
		},
		Body: body.String(),
	}
	_, err = r.v.Emit(vault.Briefings, vault.KindBriefing, topic, note, ".md")
	if err != nil {
		return fmt.Errorf("briefing: emit %s: %w", topic, err)
	}
	r.log.Info("briefing: emitted", zap.String("topic", topic))
	return nil
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
