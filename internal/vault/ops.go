package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vaultwork/orchestrator/internal/eventlog"
	"github.com/vaultwork/orchestrator/pkg/clock"
	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

// Vault wraps a Layout with the clock and event logger every stage
// transition needs, and is the sole writer of stage-transition log
// records (spec.md §3.5 I6: audit completeness).
type Vault struct {
	Layout Layout
	Clock  clock.Clock
	Log    *eventlog.Logger
}

// New returns a Vault rooted at root, creating every stage directory
// that does not already exist.
func New(root string, clk clock.Clock, log *eventlog.Logger) (*Vault, error) {
	l := NewLayout(root)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: %s", vaulterrors.ErrVaultRootMissing, root)
	}
	for _, s := range AllStages {
		if err := os.MkdirAll(l.StageDir(s), 0o755); err != nil {
			return nil, fmt.Errorf("vault: create stage dir %s: %w", s, err)
		}
	}
	return &Vault{Layout: l, Clock: clk, Log: log}, nil
}

// Entry describes one file found by List.
type Entry struct {
	Stem string
	Ext  string
	Path string
}

// Name returns the entry's full filename (stem + extension).
func (e Entry) Name() string { return e.Stem + e.Ext }

// List returns every file directly under a stage directory, sorted by
// stem for deterministic iteration.
func (v *Vault) List(s Stage) ([]Entry, error) {
	dir := v.Layout.StageDir(s)
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", vaulterrors.ErrStageMissing, dir)
		}
		return nil, fmt.Errorf("vault: list %s: %w", dir, err)
	}
	var out []Entry
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		ext := filepath.Ext(name)
		out = append(out, Entry{
			Stem: strings.TrimSuffix(name, ext),
			Ext:  ext,
			Path: filepath.Join(dir, name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stem < out[j].Stem })
	return out, nil
}

// Find locates a stem within a stage directory, returning the matching
// Entry. It is a targeted List, used by callers that already know the
// stage a stem should be in.
func (v *Vault) Find(s Stage, stem string) (Entry, bool, error) {
	entries, err := v.List(s)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Stem == stem {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Emit writes a brand-new note into a stage directory under kind/topic,
// resolving filename collisions by appending a counter suffix to the
// timestamp second, and appends one "emit" log record. Emit is the only
// way new files enter the vault from watchers and the reasoning layer.
func (v *Vault) Emit(s Stage, kind Kind, topic string, n Note, ext string) (Entry, error) {
	return v.emit(s, kind, topic, n, ext, "emit")
}

// EmitAs behaves like Emit but logs eventType in place of the generic
// "emit", so a caller whose write carries its own domain semantics (e.g.
// a filesystem drop, spec.md §8 scenario 1's "log record event_type=
// file_drop") can satisfy literal log-record assertions without losing
// Emit's collision-suffix behavior.
func (v *Vault) EmitAs(s Stage, kind Kind, topic string, n Note, ext, eventType string) (Entry, error) {
	return v.emit(s, kind, topic, n, ext, eventType)
}

func (v *Vault) emit(s Stage, kind Kind, topic string, n Note, ext, eventType string) (Entry, error) {
	if ext == "" {
		ext = ".md"
	}
	now := v.Clock.Now()
	stem := BuildStem(kind, topic, now)

	dir := v.Layout.StageDir(s)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("vault: create stage dir %s: %w", dir, err)
	}

	content, err := RenderNote(n)
	if err != nil {
		return Entry{}, err
	}

	var path string
	for attempt := 0; attempt < 100; attempt++ {
		candidate := stem
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d", stem, attempt)
		}
		candidatePath := filepath.Join(dir, candidate+ext)
		f, err := os.OpenFile(candidatePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if _, werr := f.WriteString(content); werr != nil {
				f.Close()
				return Entry{}, fmt.Errorf("vault: write %s: %w", candidatePath, werr)
			}
			if werr := f.Sync(); werr != nil {
				f.Close()
				return Entry{}, fmt.Errorf("vault: sync %s: %w", candidatePath, werr)
			}
			f.Close()
			path = candidatePath
			stem = candidate
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return Entry{}, fmt.Errorf("vault: create %s: %w", candidatePath, err)
		}
	}
	if path == "" {
		v.logTransition(eventType, "", string(s), stem, "error", vaulterrors.ErrStemCollision.Error())
		return Entry{}, fmt.Errorf("%w: stage=%s stem=%s", vaulterrors.ErrStemCollision, s, stem)
	}

	v.logTransition(eventType, "", string(s), stem, "ok", "")
	return Entry{Stem: stem, Ext: ext, Path: path}, nil
}

// Move relocates a stem from one stage to another via a single
// os.Rename, the system's only commit primitive (spec.md §5). Moves out
// of a terminal stage are refused. A pre-existing file at the
// destination is an Integrity error (spec.md §4.1 "never overwrites",
// §7 stem collision): Move never clobbers it, and instead quarantines
// the file it was carrying to Rejected/ with an error sibling.
func (v *Vault) Move(from, to Stage, stem string) (Entry, error) {
	return v.move(from, to, stem, "move")
}

// MoveAs behaves like Move but logs eventType in place of the generic
// "move", so a caller whose move carries its own domain semantics (e.g.
// an expiry sweep rejecting a note, spec.md §8 scenario 6's "log record
// event_type=approval_expired") can satisfy literal log-record
// assertions without losing Move's quarantine-on-collision behavior.
func (v *Vault) MoveAs(from, to Stage, stem, eventType string) (Entry, error) {
	return v.move(from, to, stem, eventType)
}

func (v *Vault) move(from, to Stage, stem, eventType string) (Entry, error) {
	if TerminalStages[from] {
		return Entry{}, fmt.Errorf("%w: stem=%s stage=%s", vaulterrors.ErrAlreadyTerminal, stem, from)
	}

	entry, ok, err := v.Find(from, stem)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("vault: move %s: not found in %s", stem, from)
	}

	destDir := v.Layout.StageDir(to)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("vault: create stage dir %s: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, entry.Name())

	if _, statErr := os.Stat(destPath); statErr == nil {
		return Entry{}, v.quarantineOnCollision(eventType, string(from), string(to), stem, entry)
	} else if !os.IsNotExist(statErr) {
		return Entry{}, fmt.Errorf("vault: stat %s: %w", destPath, statErr)
	}

	if err := os.Rename(entry.Path, destPath); err != nil {
		v.logTransition(eventType, string(from), string(to), stem, "error", err.Error())
		return Entry{}, fmt.Errorf("vault: move %s -> %s: %w", from, to, err)
	}

	v.logTransition(eventType, string(from), string(to), stem, "ok", "")
	return Entry{Stem: stem, Ext: entry.Ext, Path: destPath}, nil
}

// Claim atomically moves a stem from a source stage into a peer's
// In_Progress subdirectory. A failed rename because the file is already
// gone means another peer won the race; that is reported as
// ErrClaimLost, not a hard error (spec.md §3.5 I5, §4.8).
func (v *Vault) Claim(from Stage, stem, peer string) (Entry, error) {
	entry, ok, err := v.Find(from, stem)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: stem=%s", vaulterrors.ErrClaimLost, stem)
	}

	peerDir := v.Layout.PeerDir(peer)
	if err := os.MkdirAll(peerDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("vault: create peer dir %s: %w", peerDir, err)
	}
	destPath := filepath.Join(peerDir, entry.Name())

	if _, statErr := os.Stat(destPath); statErr == nil {
		return Entry{}, v.quarantineOnCollision("claim", string(from), peerClaimLabel(peer), stem, entry)
	} else if !os.IsNotExist(statErr) {
		return Entry{}, fmt.Errorf("vault: stat %s: %w", destPath, statErr)
	}

	if err := os.Rename(entry.Path, destPath); err != nil {
		if os.IsNotExist(err) {
			return Entry{}, fmt.Errorf("%w: stem=%s", vaulterrors.ErrClaimLost, stem)
		}
		return Entry{}, fmt.Errorf("vault: claim %s: %w", stem, err)
	}

	v.logTransition("claim", string(from), peerClaimLabel(peer), stem, "ok", "")
	return Entry{Stem: stem, Ext: entry.Ext, Path: destPath}, nil
}

// Release moves a stem out of a peer's In_Progress subdirectory and back
// into to, e.g. after a watcher abandons partial work or a stale claim is
// swept.
func (v *Vault) Release(peer string, stem string, to Stage) (Entry, error) {
	peerDir := v.Layout.PeerDir(peer)
	infos, err := os.ReadDir(peerDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, fmt.Errorf("%w: stem=%s", vaulterrors.ErrClaimLost, stem)
		}
		return Entry{}, fmt.Errorf("vault: read peer dir %s: %w", peerDir, err)
	}
	var found Entry
	ok := false
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ext := filepath.Ext(info.Name())
		if strings.TrimSuffix(info.Name(), ext) == stem {
			found = Entry{Stem: stem, Ext: ext, Path: filepath.Join(peerDir, info.Name())}
			ok = true
			break
		}
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: stem=%s", vaulterrors.ErrClaimLost, stem)
	}

	destDir := v.Layout.StageDir(to)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("vault: create stage dir %s: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, found.Name())
	if _, statErr := os.Stat(destPath); statErr == nil {
		return Entry{}, v.quarantineOnCollision("release", peerClaimLabel(peer), string(to), stem, found)
	} else if !os.IsNotExist(statErr) {
		return Entry{}, fmt.Errorf("vault: stat %s: %w", destPath, statErr)
	}

	if err := os.Rename(found.Path, destPath); err != nil {
		return Entry{}, fmt.Errorf("vault: release %s: %w", stem, err)
	}

	v.logTransition("release", peerClaimLabel(peer), string(to), stem, "ok", "")
	return Entry{Stem: stem, Ext: found.Ext, Path: destPath}, nil
}

// quarantineOnCollision handles an Integrity-class stem collision
// (spec.md §7: "quarantine to Rejected/ with an error sibling; log;
// continue"): the primitive's computed destination is already occupied,
// so rather than overwrite it, the file being relocated is instead
// routed to Rejected/ with a sibling error record explaining why.
func (v *Vault) quarantineOnCollision(primitive, from, to, stem string, entry Entry) error {
	collisionErr := fmt.Errorf("%w: stem=%s stage=%s", vaulterrors.ErrStemCollision, stem, to)

	if to == string(Rejected) {
		// Already quarantining; a second collision here means Rejected/
		// itself holds the stem, so surface rather than loop.
		v.logTransition(primitive, from, to, stem, "error", collisionErr.Error())
		return collisionErr
	}

	rejectedDir := v.Layout.StageDir(Rejected)
	if err := os.MkdirAll(rejectedDir, 0o755); err != nil {
		return fmt.Errorf("vault: create stage dir %s: %w", rejectedDir, err)
	}

	destPath := filepath.Join(rejectedDir, entry.Name())
	for attempt := 1; attempt < 100; attempt++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(rejectedDir, fmt.Sprintf("%s_%d%s", stem, attempt, entry.Ext))
	}

	if err := os.Rename(entry.Path, destPath); err != nil {
		v.logTransition(primitive, from, string(Rejected), stem, "error", err.Error())
		return fmt.Errorf("vault: quarantine %s: %w", stem, err)
	}

	errPath := strings.TrimSuffix(destPath, entry.Ext) + "_error.md"
	sibling := fmt.Sprintf("---\ntype: rejection_record\nfor_stem: %s\n---\n\n%s\n", stem, collisionErr.Error())
	_ = os.WriteFile(errPath, []byte(sibling), 0o644)

	v.logTransition(primitive, from, string(Rejected), stem, "quarantined", collisionErr.Error())
	return collisionErr
}

func peerClaimLabel(peer string) string {
	return fmt.Sprintf("%s/%s", InProgress, peer)
}

func (v *Vault) logTransition(eventType, from, to, stem, result, detail string) {
	if v.Log == nil {
		return
	}
	detailStr := detail
	if from != "" || to != "" {
		if detailStr != "" {
			detailStr = fmt.Sprintf("%s -> %s: %s", from, to, detail)
		} else {
			detailStr = fmt.Sprintf("%s -> %s", from, to)
		}
	}
	_ = v.Log.Append(eventlog.Record{
		EventType: eventType,
		Actor:     "vault",
		File:      stem,
		Result:    result,
		Detail:    detailStr,
	})
}
