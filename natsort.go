package img2bag

import (
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Segment is one run of a PathSegmentKey. Keys always start with a text segment (possibly
// empty) and alternate, so segments at the same index are of the same kind.
type Segment struct {
	Text   string
	Digits bool
	// folded is the comparison form of a text segment. The path separator maps to NUL so a
	// directory always sorts before a sibling sharing its prefix.
	folded string
	// value is a digit segment without leading zeros.
	value string
}

// PathSegmentKey is the natural-order decomposition of a path.
type PathSegmentKey struct {
	raw      string
	Segments []Segment
}

// NewPathSegmentKey splits s into alternating text and digit runs.
func NewPathSegmentKey(s string) PathSegmentKey {
	key := PathSegmentKey{raw: s}

	start := 0
	digits := false
	for i := 0; i <= len(s); i++ {
		if i < len(s) && isDigit(s[i]) == digits {
			continue
		}

		key.Segments = append(key.Segments, newSegment(s[start:i], digits))
		start = i
		digits = !digits
	}

	return key
}

func newSegment(text string, digits bool) Segment {
	seg := Segment{Text: text, Digits: digits}
	if digits {
		seg.value = strings.TrimLeft(text, "0")
	} else {
		seg.folded = strings.ReplaceAll(cases.Fold().String(text), string(os.PathSeparator), "\x00")
	}
	return seg
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// String reconstructs the original path.
func (key PathSegmentKey) String() string {
	var b strings.Builder
	for _, seg := range key.Segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Compare orders keys naturally and returns -1, 0 or +1. Zero is only returned for keys
// built from identical strings.
func (key PathSegmentKey) Compare(other PathSegmentKey) int {
	n := len(key.Segments)
	if len(other.Segments) < n {
		n = len(other.Segments)
	}

	for i := 0; i < n; i++ {
		a, b := &key.Segments[i], &other.Segments[i]

		var c int
		if a.Digits {
			c = compareDigits(a, b)
		} else {
			c = strings.Compare(a.folded, b.folded)
		}

		if c != 0 {
			return c
		}
	}

	switch {
	case len(key.Segments) < len(other.Segments):
		return -1
	case len(key.Segments) > len(other.Segments):
		return 1
	}

	// equal up to case folding
	return strings.Compare(key.raw, other.raw)
}

// compareDigits compares by numeric value, then by the original text so "01" < "1".
func compareDigits(a, b *Segment) int {
	if len(a.value) != len(b.value) {
		if len(a.value) < len(b.value) {
			return -1
		}
		return 1
	}

	if c := strings.Compare(a.value, b.value); c != 0 {
		return c
	}

	return strings.Compare(a.Text, b.Text)
}

// CompareNatural compares two paths in natural order.
func CompareNatural(a, b string) int {
	return NewPathSegmentKey(a).Compare(NewPathSegmentKey(b))
}

// SortNatural sorts paths in place in natural order.
func SortNatural(paths []string) {
	keys := make([]PathSegmentKey, len(paths))
	for i, p := range paths {
		keys[i] = NewPathSegmentKey(p)
	}

	sort.Stable(byKey{keys: keys, paths: paths})
}

type byKey struct {
	keys  []PathSegmentKey
	paths []string
}

func (s byKey) Len() int           { return len(s.keys) }
func (s byKey) Less(i, j int) bool { return s.keys[i].Compare(s.keys[j]) < 0 }
func (s byKey) Swap(i, j int) {
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
	s.paths[i], s.paths[j] = s.paths[j], s.paths[i]
}
