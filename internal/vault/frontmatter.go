package vault

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fence is the delimiter bracketing an action note's preamble, matching
// the frontmatter convention the rest of the Go ecosystem uses for
// Markdown-with-metadata files.
const fence = "---"

// Preamble is the structured head of an action note (spec.md §3.2). Extra
// carries type-specific fields (sender, amount, platform, channel, ...)
// that ride alongside the required set without the core needing to know
// their shape.
type Preamble struct {
	Type     string     `yaml:"type"`
	Action   string     `yaml:"action"`
	Priority string     `yaml:"priority"`
	Status   string     `yaml:"status"`
	Created  time.Time  `yaml:"created"`
	Expires  *time.Time `yaml:"expires,omitempty"`

	Extra map[string]any `yaml:"-"`
}

// Priority levels, per spec.md §3.2.
const (
	PriorityP0 = "P0" // immediate
	PriorityP1 = "P1" // 2h
	PriorityP2 = "P2" // 24h
	PriorityP3 = "P3" // 72h
)

// Status values, per spec.md §3.2.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusDone       = "done"
)

// Note is a fully parsed action note: its preamble plus the free-form
// body that follows it.
type Note struct {
	Preamble Preamble
	Body     string
}

// ParseNote splits raw file content into a Preamble and body. The
// preamble occupies the region between two "---" fence lines at the top
// of the file; everything after the closing fence is the body verbatim.
// A file with no opening fence has an empty Preamble and the entire
// content as Body — callers treat that as a malformed note via
// vaulterrors.ErrPreambleUnreadable, not ParseNote itself, since some
// stages (e.g. raw Inbox/ drops) legitimately have no preamble yet.
func ParseNote(raw string) (Note, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != fence {
		return Note{Body: raw}, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == fence {
			end = i
			break
		}
	}
	if end == -1 {
		return Note{}, fmt.Errorf("vault: unterminated frontmatter fence")
	}

	yamlBlock := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	var raw_ map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &raw_); err != nil {
		return Note{}, fmt.Errorf("vault: parse frontmatter: %w", err)
	}

	pre, err := preambleFromMap(raw_)
	if err != nil {
		return Note{}, err
	}
	return Note{Preamble: pre, Body: body}, nil
}

func preambleFromMap(m map[string]any) (Preamble, error) {
	pre := Preamble{Extra: map[string]any{}}
	known := map[string]bool{
		"type": true, "action": true, "priority": true,
		"status": true, "created": true, "expires": true,
	}
	for k, v := range m {
		if !known[k] {
			pre.Extra[k] = v
			continue
		}
	}

	if s, ok := m["type"].(string); ok {
		pre.Type = s
	}
	if s, ok := m["action"].(string); ok {
		pre.Action = s
	}
	if s, ok := m["priority"].(string); ok {
		pre.Priority = s
	}
	if s, ok := m["status"].(string); ok {
		pre.Status = s
	}
	if s, ok := m["created"].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Preamble{}, fmt.Errorf("vault: parse created timestamp %q: %w", s, err)
		}
		pre.Created = t
	}
	if s, ok := m["expires"].(string); ok && s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Preamble{}, fmt.Errorf("vault: parse expires timestamp %q: %w", s, err)
		}
		pre.Expires = &t
	}
	return pre, nil
}

// RenderNote serializes a Note back to the on-disk fenced format. Field
// order is fixed (type, action, priority, status, created, expires, then
// Extra keys) so diffs stay small and human review stays predictable.
func RenderNote(n Note) (string, error) {
	var b strings.Builder
	b.WriteString(fence)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "type: %s\n", n.Preamble.Type)
	fmt.Fprintf(&b, "action: %s\n", n.Preamble.Action)
	fmt.Fprintf(&b, "priority: %s\n", n.Preamble.Priority)
	fmt.Fprintf(&b, "status: %s\n", n.Preamble.Status)
	fmt.Fprintf(&b, "created: %s\n", n.Preamble.Created.UTC().Format(time.RFC3339))
	if n.Preamble.Expires != nil {
		fmt.Fprintf(&b, "expires: %s\n", n.Preamble.Expires.UTC().Format(time.RFC3339))
	}

	if len(n.Preamble.Extra) > 0 {
		extra, err := yaml.Marshal(n.Preamble.Extra)
		if err != nil {
			return "", fmt.Errorf("vault: render extra frontmatter: %w", err)
		}
		b.Write(extra)
	}

	b.WriteString(fence)
	b.WriteByte('\n')
	if n.Body != "" {
		b.WriteByte('\n')
		b.WriteString(n.Body)
	}
	return b.String(), nil
}

// IsExpired reports whether the note's expires deadline has passed as of now.
func (p Preamble) IsExpired(now time.Time) bool {
	return p.Expires != nil && now.After(*p.Expires)
}
