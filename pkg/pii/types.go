// Package pii implements the fail-safe anonymization core: pseudonym guard,
// fallback detector, entity classifier, primary detector adapters, the dual
// redaction engine, and the cascade orchestrator that ties them together.
//
// The defining property of the package is the no-leak guarantee: every layer
// that fails hands off to a cruder layer, and when everything fails the
// caller gets an explicit error with no text payload. Original input text is
// never returned as a failure fallback.
package pii

// DetectionMethod identifies which layer of the cascade produced a span.
type DetectionMethod string

const (
	MethodPrimary   DetectionMethod = "ml_model"
	MethodFallback  DetectionMethod = "fallback_regex"
	MethodEmergency DetectionMethod = "emergency_fallback"
)

// CandidateSpan is one detected PII occurrence. Offsets are byte offsets
// into the UTF-8 source text, half-open [Start, End). Spans are immutable
// once produced; downstream stages filter or consume them, never mutate.
type CandidateSpan struct {
	EntityType string          `json:"entity_type"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
	Text       string          `json:"text"`
	Score      float64         `json:"score"`
	Method     DetectionMethod `json:"method"`
}

// Overlaps reports whether this span intersects [start, end).
func (s CandidateSpan) Overlaps(start, end int) bool {
	return s.Start < end && start < s.End
}

// ProtectedRange marks a region of text that must never be redacted,
// derived from pseudonym occurrences.
type ProtectedRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether the range intersects [start, end).
func (p ProtectedRange) Overlaps(start, end int) bool {
	return p.Start < end && start < p.End
}

// RedactionSpan is the audit record of one applied redaction. Audit lists
// are always ordered ascending by Start, regardless of the order in which
// the redactor applied replacements internally.
type RedactionSpan struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	EntityType  string `json:"entity_type"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// RedactionStrategy identifies which redaction path produced the output.
type RedactionStrategy string

const (
	StrategyStructured RedactionStrategy = "structured"
	StrategyDirect     RedactionStrategy = "direct"
)

// State is a stage of the cascade state machine. The orchestrator records
// the states it visited per request for audit purposes.
type State string

const (
	StateIdle               State = "idle"
	StateDetectPrimary      State = "detect_primary"
	StateDetectFallback     State = "detect_fallback"
	StateRedactingStructure State = "redacting_structured"
	StateRedactingDirect    State = "redacting_direct"
	StateEmergencyFallback  State = "emergency_fallback"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Reason is the audit code attached to every classification decision.
// A decision is never silent: both redact and preserve outcomes carry one.
type Reason string

const (
	ReasonBirthDate            Reason = "birth_date"
	ReasonBirthContextOverride Reason = "birth_context_override"
	ReasonExcludedType         Reason = "excluded_type"
	ReasonBelowMinLength       Reason = "below_min_length"
	ReasonCommonWordsOnly      Reason = "common_words_only"
	ReasonVersionString        Reason = "version_string"
	ReasonPlaceholderIP        Reason = "placeholder_ip"
	ReasonShortNumeric         Reason = "short_numeric_no_context"
	ReasonNonStreetLocation    Reason = "non_street_location"
	ReasonStreetAddress        Reason = "street_address"
	ReasonSensitiveType        Reason = "sensitive_type"
)

// Decision is the classifier's verdict for one candidate span.
type Decision struct {
	Redact bool
	Reason Reason
}
