package pii

import "errors"

// Sentinel errors of the cascade. Per-rule and per-span failures are
// absorbed and logged where they occur; only these cross stage boundaries.
var (
	// ErrDetectorUnavailable signals that the primary detector failed to
	// initialize or raised during a call. Recoverable: the orchestrator
	// treats it as a trigger for the fallback layer, never as zero entities.
	ErrDetectorUnavailable = errors.New("primary detector unavailable")

	// ErrOverlappingSpans is returned by structured redaction when its input
	// spans overlap. Structured mode fails closed rather than produce
	// ambiguous output; the orchestrator escalates to direct mode.
	ErrOverlappingSpans = errors.New("overlapping spans in structured redaction input")

	// ErrRedactionApply signals that a redaction pass failed as a whole.
	// Recoverable: the orchestrator escalates strategy.
	ErrRedactionApply = errors.New("redaction apply failed")

	// ErrCascadeExhausted is the only failure callers of Anonymize see.
	// It carries no text payload: when every layer has failed, nothing that
	// could contain unredacted input may leave the cascade.
	ErrCascadeExhausted = errors.New("anonymization cascade exhausted")
)
