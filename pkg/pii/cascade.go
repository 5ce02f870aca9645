package pii

import (
	"context"
	"log"
	"sort"
)

// Service is the cascade orchestrator. It owns the detection layers and the
// redaction strategies and walks them as an explicit state machine:
//
//	Idle -> DetectPrimary -> DetectFallback -> Redacting(Structured)
//	     -> Redacting(Direct) -> EmergencyFallback -> Done | Failed
//
// Every transition narrows capability (detection accuracy, then redaction
// elegance) but never the no-leak guarantee: a failed cascade surfaces
// ErrCascadeExhausted with no text payload, never the original input.
//
// The service is stateless per request; all shared state (policy tables,
// rule registry) is immutable after construction, so one Service serves
// concurrent requests without locking.
type Service struct {
	primary       *PrimaryDetector
	fallback      *FallbackDetector
	classifier    *Classifier
	redactor      redactionEngine
	policy        *Policy
	contextMargin int
}

// redactionEngine is the orchestrator's seam to the redaction strategies.
// *Redactor is the production implementation; tests substitute failing
// engines to drive the emergency and exhaustion transitions.
type redactionEngine interface {
	RedactStructured(text string, spans []CandidateSpan) (string, []RedactionSpan, error)
	RedactDirect(text string, spans []CandidateSpan) (string, []RedactionSpan, error)
}

// Options configures a Service.
type Options struct {
	// Analyzer is the primary detector; nil means fallback-only mode.
	Analyzer Analyzer
	// Applier is the optional external substitution collaborator for
	// structured redaction; nil selects the internal engine.
	Applier SubstitutionApplier
	// Policy tables; nil loads the compiled-in defaults.
	Policy *Policy
	// Language passed through to the analyzer (default "en").
	Language string
	// MinConfidence threshold for primary results (default 0.7).
	MinConfidence float64
	// DuplicateTolerance for fallback near-duplicate suppression (default 3).
	DuplicateTolerance int
}

// NewService wires the cascade together.
func NewService(opts Options) *Service {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.7
	}

	classifier := NewClassifier(opts.Policy)
	var primary *PrimaryDetector
	if opts.Analyzer != nil {
		primary = NewPrimaryDetector(opts.Analyzer, classifier, opts.Language, opts.MinConfidence)
	}

	return &Service{
		primary:       primary,
		fallback:      NewFallbackDetector(opts.DuplicateTolerance),
		classifier:    classifier,
		redactor:      NewRedactor(opts.Policy, opts.Applier),
		policy:        opts.Policy,
		contextMargin: 20,
	}
}

// MLActive reports whether the primary detector is configured and ready.
func (s *Service) MLActive() bool {
	return s.primary != nil && s.primary.IsReady()
}

// Policy returns the service's policy tables.
func (s *Service) Policy() *Policy {
	return s.policy
}

// Result is the outcome of a successful anonymize call.
type Result struct {
	Text      string
	Spans     []RedactionSpan
	Method    DetectionMethod
	Strategy  RedactionStrategy
	States    []State
	Pseudonym string
}

// Anonymize runs the full cascade over the text with the service's default
// language. On success the result holds the redacted text and an audit list
// in original text order. On total failure it returns ErrCascadeExhausted
// and nothing else.
func (s *Service) Anonymize(ctx context.Context, text, pseudonym string) (*Result, error) {
	return s.AnonymizeWithLanguage(ctx, text, pseudonym, "")
}

// AnonymizeWithLanguage runs the cascade analyzing in the given language.
// An empty language uses the service default.
func (s *Service) AnonymizeWithLanguage(ctx context.Context, text, pseudonym, language string) (*Result, error) {
	states := []State{StateIdle}
	protected := ProtectedRanges(text, pseudonym)

	// Detection: primary if configured, fallback on any detector error.
	var spans []CandidateSpan
	method := MethodFallback
	structuredEligible := false

	if s.primary != nil {
		states = append(states, StateDetectPrimary)
		primarySpans, err := s.primary.Detect(ctx, text, language, pseudonym, protected)
		if err == nil {
			spans = primarySpans
			method = MethodPrimary
			structuredEligible = true
		} else {
			log.Printf("[CASCADE] primary detection failed, using fallback: %v", err)
		}
	}
	if method != MethodPrimary {
		states = append(states, StateDetectFallback)
		spans = s.detectFallback(text, protected, MethodFallback)
	}

	spans = s.resolveOverlaps(spans)

	// Redaction: structured only for primary spans; fallback spans go
	// straight to the direct path, which needs no collaborator.
	if structuredEligible {
		states = append(states, StateRedactingStructure)
		out, audit, err := s.redactor.RedactStructured(text, spans)
		if err == nil {
			states = append(states, StateDone)
			return &Result{
				Text: out, Spans: audit, Method: method,
				Strategy: StrategyStructured, States: states, Pseudonym: pseudonym,
			}, nil
		}
		log.Printf("[CASCADE] structured redaction failed, using direct: %v", err)
	}

	states = append(states, StateRedactingDirect)
	out, audit, err := s.redactor.RedactDirect(text, spans)
	if err == nil {
		states = append(states, StateDone)
		return &Result{
			Text: out, Spans: audit, Method: method,
			Strategy: StrategyDirect, States: states, Pseudonym: pseudonym,
		}, nil
	}
	log.Printf("[CASCADE] direct redaction failed, entering emergency fallback: %v", err)

	// Emergency: re-detect from scratch with the regex layer and redact
	// directly one last time.
	states = append(states, StateEmergencyFallback)
	emergencySpans := s.resolveOverlaps(s.detectFallback(text, protected, MethodEmergency))
	out, audit, err = s.redactor.RedactDirect(text, emergencySpans)
	if err == nil {
		states = append(states, StateDone)
		return &Result{
			Text: out, Spans: audit, Method: MethodEmergency,
			Strategy: StrategyDirect, States: states, Pseudonym: pseudonym,
		}, nil
	}

	log.Printf("[CASCADE] emergency fallback failed, cascade exhausted: %v", err)
	return nil, ErrCascadeExhausted
}

// Detect runs detection only with the service's default language. It
// degrades rather than fails: primary errors fall back to the regex layer,
// and a completely empty result is a valid answer, so callers always get a
// list, possibly empty.
func (s *Service) Detect(ctx context.Context, text, pseudonym string) ([]CandidateSpan, DetectionMethod) {
	return s.DetectWithLanguage(ctx, text, pseudonym, "")
}

// DetectWithLanguage runs detection analyzing in the given language. An
// empty language uses the service default.
func (s *Service) DetectWithLanguage(ctx context.Context, text, pseudonym, language string) ([]CandidateSpan, DetectionMethod) {
	protected := ProtectedRanges(text, pseudonym)

	if s.primary != nil {
		spans, err := s.primary.Detect(ctx, text, language, pseudonym, protected)
		if err == nil {
			return s.resolveOverlaps(spans), MethodPrimary
		}
		log.Printf("[DETECT] primary detection failed, using fallback: %v", err)
	}

	return s.resolveOverlaps(s.detectFallback(text, protected, MethodFallback)), MethodFallback
}

// detectFallback runs the regex layer and classifies every match, so the
// fallback path honors the same preservation rules as the primary path.
func (s *Service) detectFallback(text string, protected []ProtectedRange, method DetectionMethod) []CandidateSpan {
	raw := s.fallback.Detect(text, protected, method)

	var accepted []CandidateSpan
	for _, span := range raw {
		context := contextWindow(text, span.Start, span.End, s.contextMargin)
		decision := s.classifier.ShouldRedact(span.EntityType, span.Text, context)
		if decision.Redact {
			accepted = append(accepted, span)
		}
	}
	return accepted
}

// resolveOverlaps keeps the earliest-starting (and at equal starts, longest)
// span of every overlapping group. Structured redaction fails closed on
// overlap and direct redaction would corrupt offsets, so overlap is resolved
// here, once, for both strategies.
func (s *Service) resolveOverlaps(spans []CandidateSpan) []CandidateSpan {
	if len(spans) < 2 {
		return spans
	}

	ordered := make([]CandidateSpan, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End > ordered[j].End
	})

	accepted := ordered[:1]
	for _, span := range ordered[1:] {
		last := accepted[len(accepted)-1]
		if span.Start < last.End {
			continue
		}
		accepted = append(accepted, span)
	}
	return accepted
}
