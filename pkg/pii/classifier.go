package pii

import (
	"regexp"
	"strings"
)

// Classifier decides whether a candidate span must be redacted. It is pure
// and synchronous: no I/O, no locks, no suspension points, so it is shared
// across concurrent requests freely.
//
// The rule ordering is load-bearing. Compliance-sensitive categories are
// forced to redact before any suppression rule can apply, and suppression
// rules only narrow ambiguous generic categories (persons, organizations,
// locations, bare numbers).
type Classifier struct {
	policy *Policy
}

// NewClassifier builds a classifier over the given policy tables.
func NewClassifier(policy *Policy) *Classifier {
	return &Classifier{policy: policy}
}

// versionShape matches dotted numeric sequences like 1.2.3 or v2.10.0.
var versionShape = regexp.MustCompile(`^v?\d+(\.\d+)+$`)

// pureDigits matches strings consisting only of digits.
var pureDigits = regexp.MustCompile(`^\d+$`)

// structuralContext marks a bare number as deliberate: an adjoining label
// separator or an identifier word near the match.
var structuralContext = regexp.MustCompile(`(?i)[#:=]|\b(?:id|no|num|number|code|ref)\b`)

// ShouldRedact applies the decision rules in order; the first matching rule
// wins and names the reason. Every decision carries a reason code, redact
// or preserve, so nothing is dropped silently.
func (c *Classifier) ShouldRedact(entityType, matched, context string) Decision {
	p := c.policy

	// 1. Explicit birth-date types always redact.
	if p.IsBirthDateType(entityType) {
		return Decision{Redact: true, Reason: ReasonBirthDate}
	}

	// 2. Excluded types are preserved, unless birth vocabulary around or
	// inside the match reveals the date to be a birth date. This is the only
	// context-overridable exclusion.
	if p.IsExcluded(entityType) {
		if p.HasBirthKeyword(context) || p.HasBirthKeyword(matched) {
			return Decision{Redact: true, Reason: ReasonBirthContextOverride}
		}
		return Decision{Redact: false, Reason: ReasonExcludedType}
	}

	// 3. Too short to be reliable.
	if len(strings.TrimSpace(matched)) < p.MinMatchLength {
		return Decision{Redact: false, Reason: ReasonBelowMinLength}
	}

	// 4. Name/organization-like matches made entirely of everyday words are
	// detector noise ("tech", "evolve"), not names.
	if p.IsNameLikeType(entityType) && c.allTokensCommon(matched) {
		return Decision{Redact: false, Reason: ReasonCommonWordsOnly}
	}

	// 5. Version numbers look like identifiers to shape-based detectors.
	// IP-typed matches are dotted numerics too; they belong to rule 6.
	if !p.IsIPType(entityType) && versionShape.MatchString(strings.TrimSpace(matched)) {
		return Decision{Redact: false, Reason: ReasonVersionString}
	}

	// 6. Well-known placeholder addresses carry no identity.
	if p.IsIPType(entityType) && p.IsPlaceholderIP(matched) {
		return Decision{Redact: false, Reason: ReasonPlaceholderIP}
	}

	// 7. A short bare number with nothing around it anchoring it to an
	// identifier is too likely a false positive.
	if pureDigits.MatchString(matched) && len(matched) < 6 && !structuralContext.MatchString(context) {
		return Decision{Redact: false, Reason: ReasonShortNumeric}
	}

	// 8. Bare city/state/country names are never redacted; only street-level
	// addresses are, recognized by a digit in the match plus street
	// vocabulary in the context.
	if p.IsLocationType(entityType) {
		if containsDigit(matched) && p.HasStreetIndicator(context) {
			return Decision{Redact: true, Reason: ReasonStreetAddress}
		}
		return Decision{Redact: false, Reason: ReasonNonStreetLocation}
	}

	// 9. Everything that survives suppression is sensitive.
	return Decision{Redact: true, Reason: ReasonSensitiveType}
}

// allTokensCommon reports whether every whitespace token of the match,
// stripped of surrounding punctuation, is in the common-word dictionary.
// A token outside the dictionary ("Inc", a surname) defeats suppression.
func (c *Classifier) allTokensCommon(matched string) bool {
	tokens := strings.Fields(matched)
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		tok = strings.ToLower(strings.Trim(tok, ".,;:!?'\"()[]{}"))
		if tok == "" {
			continue
		}
		if !c.policy.IsCommonWord(tok) {
			return false
		}
	}
	return true
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// contextWindow extracts the text surrounding [start, end) with the given
// margin on each side, clamped to the text bounds. The window includes the
// match itself.
func contextWindow(text string, start, end, margin int) string {
	lo := start - margin
	if lo < 0 {
		lo = 0
	}
	hi := end + margin
	if hi > len(text) {
		hi = len(text)
	}
	if lo >= hi {
		return ""
	}
	return text[lo:hi]
}
