package pii

import (
	"log"
	"sort"

	"github.com/lakhansamani/coach-sophia-ai-anonymizer/pkg/patterns"
)

// FallbackDetector is the regex detection layer. It never fails as a whole:
// a rule that panics mid-scan is logged and skipped, and the remaining rules
// keep the layer alive. It needs no model, no network, and no warm-up, which
// is what makes it a safe landing spot for the cascade.
type FallbackDetector struct {
	registry  *patterns.Registry
	tolerance int // near-duplicate suppression distance in bytes
}

// NewFallbackDetector builds a detector over the global rule registry.
// tolerance is the near-duplicate suppression distance; values below 1 fall
// back to the default of 3.
func NewFallbackDetector(tolerance int) *FallbackDetector {
	if tolerance < 1 {
		tolerance = 3
	}
	return &FallbackDetector{
		registry:  patterns.Get(),
		tolerance: tolerance,
	}
}

// Detect scans text with every registered rule in registry order and returns
// the surviving candidate spans sorted by start offset.
//
// A match is dropped when it overlaps a protected range, or when it lands
// within the suppression tolerance of an already accepted span on both ends.
// Registration order makes suppression keep the more specific rule's match:
// specific rules run first and claim their spans.
func (d *FallbackDetector) Detect(text string, protected []ProtectedRange, method DetectionMethod) []CandidateSpan {
	if text == "" {
		return nil
	}

	var accepted []CandidateSpan
	for _, rule := range d.registry.All() {
		matches := d.scanRule(rule, text)
		for _, m := range matches {
			start, end := m[0], m[1]
			if overlapsProtected(start, end, protected) {
				continue
			}
			if d.nearDuplicate(start, end, accepted) {
				continue
			}
			accepted = append(accepted, CandidateSpan{
				EntityType: rule.EntityType,
				Start:      start,
				End:        end,
				Text:       text[start:end],
				Score:      rule.Confidence,
				Method:     method,
			})
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].Start != accepted[j].Start {
			return accepted[i].Start < accepted[j].Start
		}
		return accepted[i].End > accepted[j].End
	})
	return accepted
}

// scanRule runs one rule over the text, absorbing any panic so a single bad
// rule cannot disable the layer.
func (d *FallbackDetector) scanRule(rule *patterns.Rule, text string) (matches [][]int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FALLBACK] rule %q panicked, skipping: %v", rule.Name, r)
			matches = nil
		}
	}()
	return rule.Regex.FindAllStringIndex(text, -1)
}

// nearDuplicate reports whether [start, end) sits within the suppression
// tolerance of an accepted span on both ends: the same token reported by two
// near-synonymous rules.
func (d *FallbackDetector) nearDuplicate(start, end int, accepted []CandidateSpan) bool {
	for _, s := range accepted {
		if abs(start-s.Start) < d.tolerance && abs(end-s.End) < d.tolerance {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
