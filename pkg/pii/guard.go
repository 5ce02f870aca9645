package pii

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/search"
)

// ProtectedRanges finds every case-insensitive occurrence of pseudonym in
// text and returns its byte range. Matching is Unicode case-folded, not
// ASCII-only, so pseudonyms like "Müller" protect "müller" too. An empty
// pseudonym yields nil: no protection, no error.
//
// Matches never overlap: the scan resumes past the end of each match, so the
// ranges are disjoint and ascending by construction.
func ProtectedRanges(text, pseudonym string) []ProtectedRange {
	if pseudonym == "" || text == "" {
		return nil
	}

	// Matchers are not safe for concurrent use, so build one per call.
	m := search.New(language.Und, search.IgnoreCase)

	var ranges []ProtectedRange
	pos := 0
	for pos < len(text) {
		start, end := m.IndexString(text[pos:], pseudonym)
		if start < 0 {
			break
		}
		ranges = append(ranges, ProtectedRange{Start: pos + start, End: pos + end})
		pos += end
	}
	return ranges
}

// overlapsProtected reports whether [start, end) intersects any protected
// range. Overlap discards a candidate unconditionally, regardless of its
// confidence.
func overlapsProtected(start, end int, protected []ProtectedRange) bool {
	for _, p := range protected {
		if p.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// containsPseudonym reports whether the matched text itself contains the
// pseudonym, case-insensitively. Detectors can report a span wider than the
// pseudonym occurrence; such spans are discarded along with exact overlaps.
func containsPseudonym(matched, pseudonym string) bool {
	if pseudonym == "" {
		return false
	}
	return strings.Contains(strings.ToLower(matched), strings.ToLower(pseudonym))
}
