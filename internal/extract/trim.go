package extract

import "strings"

// SubmissionMarkers introduce the "how to submit comments" boilerplate that
// closes executive notices, in priority order.
var SubmissionMarkers = []string{"3. 의견제출", "의견제출", "※ 제출의견", "의견 제출"}

// Trimmer cuts content at the first submission-instructions marker.
type Trimmer struct {
	markers []string
}

// NewTrimmer builds a Trimmer over markers; empty markers are ignored.
func NewTrimmer(markers ...string) *Trimmer {
	t := &Trimmer{}
	for _, m := range markers {
		if m != "" {
			t.markers = append(t.markers, m)
		}
	}
	return t
}

// DefaultTrimmer uses SubmissionMarkers.
func DefaultTrimmer() *Trimmer {
	return NewTrimmer(SubmissionMarkers...)
}

// Trim returns content up to the earliest marker occurrence, with trailing
// whitespace removed. On equal offsets the marker listed first wins. Content
// without any marker is returned unmodified. Trim(Trim(s)) == Trim(s).
func (t *Trimmer) Trim(content string) string {
	cut := -1
	for _, m := range t.markers {
		idx := strings.Index(content, m)
		if idx >= 0 && (cut < 0 || idx < cut) {
			cut = idx
		}
	}
	if cut < 0 {
		return content
	}
	return strings.TrimSpace(content[:cut])
}
