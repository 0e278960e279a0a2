package vault

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind is the filename prefix discriminating the note's origin/purpose.
// Reference: spec.md §3.3 Filenames.
type Kind string

const (
	KindEmail        Kind = "EMAIL"
	KindFile         Kind = "FILE"
	KindApproval     Kind = "APPROVAL"
	KindLinkedInPost Kind = "LINKEDIN_POST"
	KindSocial       Kind = "SOCIAL"
	KindCloudDraft   Kind = "CLOUD_DRAFT"
	KindPlan         Kind = "PLAN"
	KindUrgent       Kind = "URGENT"
	KindBriefing     Kind = "BRIEFING"
)

// timestampLayout is the fixed-width stamp used in every stem, matching
// spec.md §3.3's <YYYYMMDDHHMMSS>.
const timestampLayout = "20060102150405"

var stemPattern = regexp.MustCompile(`^([A-Za-z0-9]+(?:_[A-Za-z0-9]+)*)_([0-9]{14})$`)

// slugify makes topic safe for use inside a filename stem: only
// alphanumerics and underscores survive, everything else collapses to a
// single underscore.
func slugify(topic string) string {
	var b strings.Builder
	lastWasSep := false
	for _, r := range topic {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastWasSep = false
		default:
			if !lastWasSep && b.Len() > 0 {
				b.WriteByte('_')
				lastWasSep = true
			}
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		s = "item"
	}
	return s
}

// BuildStem constructs the canonical stem "<KIND>_<topic>_<timestamp>"
// (spec.md §3.3). The stem is stable across stage transitions and is the
// identity key used for deduplication, claiming, and logging.
func BuildStem(kind Kind, topic string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, slugify(topic), ts.UTC().Format(timestampLayout))
}

// ParseStem splits a stem back into its kind prefix, topic, and timestamp.
// Because Kind values themselves may contain underscores (e.g.
// LINKEDIN_POST), parsing anchors on the trailing 14-digit timestamp and
// treats everything before it as "<kind>_<topic>" without attempting to
// re-split kind from topic — callers that need the declared Kind should
// read it from the note's frontmatter `type`/preamble instead of
// re-deriving it from the filename.
func ParseStem(stem string) (prefix string, ts time.Time, ok bool) {
	m := stemPattern.FindStringSubmatch(stem)
	if m == nil {
		return "", time.Time{}, false
	}
	t, err := time.ParseInLocation(timestampLayout, m[2], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], t, true
}

// StemOf returns the stem of a filename: the name with its final
// extension removed. Stems never contain a dot, so this is unambiguous.
func StemOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[:i]
	}
	return filename
}
