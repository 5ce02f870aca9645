package pii

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// EmergencyMarker replaces a span whose placeholder substitution failed.
// Partial redaction failure degrades to maximal redaction, never to none.
const EmergencyMarker = "[REDACTED]"

// SubstitutionApplier is the optional external anonymization collaborator
// used by structured redaction. Given non-overlapping spans and a placeholder
// per entity type, it returns the substituted text and the spans it applied.
type SubstitutionApplier interface {
	Apply(text string, spans []CandidateSpan, placeholderByType map[string]string) (string, []RedactionSpan, error)
}

// Redactor implements both redaction strategies over one policy table.
type Redactor struct {
	policy  *Policy
	applier SubstitutionApplier
}

// NewRedactor builds a redactor. A nil applier selects the internal
// substitution engine for structured mode.
func NewRedactor(policy *Policy, applier SubstitutionApplier) *Redactor {
	if applier == nil {
		applier = internalApplier{}
	}
	return &Redactor{policy: policy, applier: applier}
}

// RedactStructured groups spans by entity type, assigns one placeholder per
// type, and delegates a single substitution pass to the applier.
//
// Structured mode requires non-overlapping input; overlap must have been
// resolved upstream. On overlap it fails closed with ErrOverlappingSpans
// rather than produce ambiguous output.
func (r *Redactor) RedactStructured(text string, spans []CandidateSpan) (string, []RedactionSpan, error) {
	if len(spans) == 0 {
		return text, []RedactionSpan{}, nil
	}

	ordered := make([]CandidateSpan, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	for i := 1; i < len(ordered); i++ {
		if ordered[i].Start < ordered[i-1].End {
			return "", nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlappingSpans,
				ordered[i-1].Start, ordered[i-1].End, ordered[i].Start, ordered[i].End)
		}
	}

	placeholders := make(map[string]string)
	for _, s := range ordered {
		if _, ok := placeholders[s.EntityType]; !ok {
			placeholders[s.EntityType] = r.policy.Replacement(s.EntityType)
		}
	}

	out, applied, err := r.applier.Apply(text, ordered, placeholders)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedactionApply, err)
	}

	sort.Slice(applied, func(i, j int) bool { return applied[i].Start < applied[j].Start })
	return out, applied, nil
}

// RedactDirect replaces spans one at a time in descending start order, so
// earlier replacements never invalidate the offsets of spans still pending.
// A span with inconsistent offsets gets the generic emergency marker at its
// clamped position instead of being skipped.
//
// The returned audit list is ascending by start offset, reflecting original
// text order, even though application ran right to left.
func (r *Redactor) RedactDirect(text string, spans []CandidateSpan) (redacted string, audit []RedactionSpan, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[REDACT] direct redaction panicked: %v", rec)
			redacted, audit = "", nil
			err = fmt.Errorf("%w: %v", ErrRedactionApply, rec)
		}
	}()

	if len(spans) == 0 {
		return text, []RedactionSpan{}, nil
	}

	ordered := make([]CandidateSpan, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	var sb strings.Builder
	out := text
	for _, s := range ordered {
		start, end := s.Start, s.End
		replacement := r.policy.Replacement(s.EntityType)

		if start < 0 || end > len(out) || start >= end {
			// Clamp and stamp the marker; degrading to maximal redaction.
			start = clamp(start, 0, len(out))
			end = clamp(end, start, len(out))
			replacement = EmergencyMarker
			log.Printf("[REDACT] inconsistent span [%d,%d) type=%s, substituting marker",
				s.Start, s.End, s.EntityType)
		}

		original := ""
		if end <= len(text) && start < end {
			original = text[start:end]
		}

		sb.Reset()
		sb.WriteString(out[:start])
		sb.WriteString(replacement)
		sb.WriteString(out[end:])
		out = sb.String()

		audit = append(audit, RedactionSpan{
			Start:       start,
			End:         end,
			EntityType:  s.EntityType,
			Original:    original,
			Replacement: replacement,
		})
	}

	sort.Slice(audit, func(i, j int) bool { return audit[i].Start < audit[j].Start })
	return out, audit, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// internalApplier is the built-in substitution engine: a single left-to-right
// pass over already validated non-overlapping spans.
type internalApplier struct{}

func (internalApplier) Apply(text string, spans []CandidateSpan, placeholderByType map[string]string) (string, []RedactionSpan, error) {
	var sb strings.Builder
	audit := make([]RedactionSpan, 0, len(spans))
	pos := 0
	for _, s := range spans {
		if s.Start < pos || s.End > len(text) {
			return "", nil, fmt.Errorf("span [%d,%d) out of sequence", s.Start, s.End)
		}
		replacement, ok := placeholderByType[s.EntityType]
		if !ok {
			return "", nil, fmt.Errorf("no placeholder for type %s", s.EntityType)
		}
		sb.WriteString(text[pos:s.Start])
		sb.WriteString(replacement)
		audit = append(audit, RedactionSpan{
			Start:       s.Start,
			End:         s.End,
			EntityType:  s.EntityType,
			Original:    text[s.Start:s.End],
			Replacement: replacement,
		})
		pos = s.End
	}
	sb.WriteString(text[pos:])
	return sb.String(), audit, nil
}
