// Package patterns provides the fallback PII detection registry: a static,
// data-driven table of named regex rules, each tagged with an entity type,
// a compliance category, and a base confidence score.
//
// Design principles:
// - COMPILE ONCE: all rules are compiled at first use, never per-request
// - DATA-DRIVEN: a single declarative table, no pattern logic in detectors
// - CATEGORIZED: rules are grouped by compliance category for targeted scans
// - FAIL-OPEN PER RULE: a malformed rule is skipped and logged, it never
//   disables the rest of the registry
package patterns

import (
	"log"
	"regexp"
	"sync"
)

// Category groups rules by the kind of sensitive data they target.
type Category string

const (
	CategoryContact      Category = "contact"       // email, phone, URL, IP
	CategoryFinancial    Category = "financial"     // cards, accounts, routing
	CategoryGovernmentID Category = "government_id" // SSN, passport, licenses
	CategoryMedical      Category = "medical"       // MRN, health plan, NPI, DEA
	CategoryTemporal     Category = "temporal"      // birth dates, generic dates
	CategoryAge          Category = "age"           // age statements, incl. over-89
	CategoryBiometric    Category = "biometric"     // fingerprint, genetic markers
	CategoryDevice       Category = "device"        // VIN, serials, IMEI, MAC
	CategoryCertificate  Category = "certificate"   // certificate/license numbers
	CategoryCredential   Category = "credential"    // API keys, passwords, wallets
	CategoryDemographic  Category = "demographic"   // explicit gender statements
)

// Confidence tiers. High-sensitivity identifiers carry a higher base
// confidence than generic shape-only patterns, so downstream consumers can
// rank fallback matches the same way the primary detector ranks its own.
const (
	ConfidenceDefault  = 0.5  // generic shape, meaningful false-positive risk
	ConfidenceElevated = 0.75 // financial/credential data
	ConfidenceHigh     = 0.8  // identity numbers, medical identifiers, birth dates
)

// Rule holds one compiled detection rule with its metadata.
// Rules are immutable after registration and safe for concurrent use.
type Rule struct {
	Name            string         // unique rule name for logging and audits
	EntityType      string         // entity type reported on a match (e.g. "SSN")
	Regex           *regexp.Regexp // compiled matcher, never nil after init
	Category        Category       // compliance category
	Confidence      float64        // base confidence assigned to matches
	CaseInsensitive bool           // whether the matcher folds case
}

// Registry holds all compiled rules in registration order.
// Registration order matters: more specific rules are registered before the
// generic shapes they overlap with, so near-duplicate suppression in the
// fallback detector keeps the specific match.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Rule
	ordered    []*Rule
	skipped    int
}

var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global rule registry, building it on first call.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Rule),
		ordered:    make([]*Rule, 0, 64),
	}

	// Specific before generic: birth dates before plain dates, keyword-anchored
	// identifiers before bare numeric shapes.
	r.registerTemporalRules()
	r.registerAgeRules()
	r.registerMedicalRules()
	r.registerGovernmentIDRules()
	r.registerFinancialRules()
	r.registerCredentialRules()
	r.registerContactRules()
	r.registerDeviceRules()
	r.registerBiometricRules()
	r.registerCertificateRules()
	r.registerDemographicRules()

	return r
}

// register compiles and adds a rule. A rule that fails to compile is logged
// and skipped; the registry stays usable with the remaining rules.
func (r *Registry) register(name, entityType, pattern string, cat Category, confidence float64, caseInsensitive bool) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("[PATTERNS] skipping malformed rule %q: %v", name, err)
		r.skipped++
		return
	}
	rule := &Rule{
		Name:            name,
		EntityType:      entityType,
		Regex:           compiled,
		Category:        cat,
		Confidence:      confidence,
		CaseInsensitive: caseInsensitive,
	}
	r.byCategory[cat] = append(r.byCategory[cat], rule)
	r.ordered = append(r.ordered, rule)
}

// All returns every rule in registration order. The returned slice is shared
// and must not be mutated.
func (r *Registry) All() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered
}

// ByCategory returns the rules of one category. Never nil.
func (r *Registry) ByCategory(cat Category) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rules, ok := r.byCategory[cat]; ok {
		return rules
	}
	return []*Rule{}
}

// ByEntityType returns the rules reporting the given entity type.
func (r *Registry) ByEntityType(entityType string) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Rule
	for _, rule := range r.ordered {
		if rule.EntityType == entityType {
			out = append(out, rule)
		}
	}
	return out
}

// TotalRules returns the number of successfully compiled rules.
func (r *Registry) TotalRules() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// CategoryCount returns the number of rules in a category.
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}

// SkippedRules returns how many rules were dropped at compile time.
func (r *Registry) SkippedRules() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skipped
}

// EntityTypes returns the distinct entity types covered by the registry,
// in first-seen registration order.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.ordered))
	var out []string
	for _, rule := range r.ordered {
		if !seen[rule.EntityType] {
			seen[rule.EntityType] = true
			out = append(out, rule.EntityType)
		}
	}
	return out
}
