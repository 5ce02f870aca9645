package pii

import (
	"context"
	"fmt"
	"log"
)

// Analyzer is the boundary to the high-accuracy primary detector. An
// implementation either returns a complete result or an error, never a
// partial one: the orchestrator treats any error as a trigger for fallback,
// not as zero entities found.
//
// Blocking call with no mid-flight cancellation semantics beyond ctx.
type Analyzer interface {
	Analyze(ctx context.Context, text, language string, minConfidence float64) ([]CandidateSpan, error)
	IsReady() bool
}

// PrimaryDetector adapts raw analyzer output for the cascade. Its only
// responsibilities: protected-range rejection, pseudonym containment checks,
// and running the classifier over every surviving span.
type PrimaryDetector struct {
	analyzer      Analyzer
	classifier    *Classifier
	language      string
	minConfidence float64
	contextMargin int
}

// NewPrimaryDetector wraps an analyzer. minConfidence below results are
// discarded by the analyzer itself; the adapter never re-scores.
func NewPrimaryDetector(analyzer Analyzer, classifier *Classifier, language string, minConfidence float64) *PrimaryDetector {
	return &PrimaryDetector{
		analyzer:      analyzer,
		classifier:    classifier,
		language:      language,
		minConfidence: minConfidence,
		contextMargin: 20,
	}
}

// IsReady reports whether the wrapped analyzer can serve calls.
func (p *PrimaryDetector) IsReady() bool {
	return p.analyzer != nil && p.analyzer.IsReady()
}

// Detect runs the primary analyzer and filters its output. An empty language
// uses the detector's default. Any analyzer failure surfaces as
// ErrDetectorUnavailable: the caller must fall back, never interpret the
// error as an empty result.
func (p *PrimaryDetector) Detect(ctx context.Context, text, language, pseudonym string, protected []ProtectedRange) ([]CandidateSpan, error) {
	if p.analyzer == nil || !p.analyzer.IsReady() {
		return nil, ErrDetectorUnavailable
	}
	if language == "" {
		language = p.language
	}

	results, err := p.analyzer.Analyze(ctx, text, language, p.minConfidence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	var accepted []CandidateSpan
	for _, span := range results {
		if span.Start < 0 || span.End > len(text) || span.Start >= span.End {
			log.Printf("[PRIMARY] dropping span with inconsistent offsets [%d,%d) type=%s",
				span.Start, span.End, span.EntityType)
			continue
		}
		if overlapsProtected(span.Start, span.End, protected) {
			continue
		}
		matched := text[span.Start:span.End]
		if containsPseudonym(matched, pseudonym) {
			continue
		}

		context := contextWindow(text, span.Start, span.End, p.contextMargin)
		decision := p.classifier.ShouldRedact(span.EntityType, matched, context)
		if !decision.Redact {
			continue
		}

		span.Text = matched
		span.Method = MethodPrimary
		accepted = append(accepted, span)
	}
	return accepted, nil
}
