package pii

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the declarative rule data of the classifier and redactors:
// placeholder vocabulary, exclusion set, common-word dictionary, birth
// keywords, street indicators, placeholder IPs. Loaded once at startup and
// never mutated afterwards, so it is shared across requests without locking.
type Policy struct {
	// Replacements maps entity type to its human-readable placeholder.
	// Unknown types fall back to DefaultReplacement, making the mapping total.
	Replacements       map[string]string `yaml:"replacements"`
	DefaultReplacement string            `yaml:"default_replacement"`

	// Exclusions lists entity types detected but preserved by policy unless
	// birth context overrides the exclusion.
	Exclusions []string `yaml:"exclusions"`

	// BirthDateTypes always redact, before any suppression rule applies.
	BirthDateTypes []string `yaml:"birth_date_types"`
	// BirthKeywords in context or matched text override an exclusion.
	BirthKeywords []string `yaml:"birth_keywords"`

	// CommonWords suppress name/organization-like matches composed entirely
	// of everyday vocabulary.
	CommonWords []string `yaml:"common_words"`
	// NameLikeTypes are the entity types the common-word filter applies to.
	NameLikeTypes []string `yaml:"name_like_types"`

	// LocationTypes get the street-address rule: preserved unless the match
	// carries a digit and the context mentions a street indicator.
	LocationTypes    []string `yaml:"location_types"`
	StreetIndicators []string `yaml:"street_indicators"`

	// IPTypes and PlaceholderIPs: well-known non-routable addresses are
	// preserved rather than treated as PII.
	IPTypes        []string `yaml:"ip_types"`
	PlaceholderIPs []string `yaml:"placeholder_ips"`

	// MinMatchLength rejects matches too short to be reliable.
	MinMatchLength int `yaml:"min_match_length"`

	// lookup sets built once by finalize
	replacements   map[string]string
	exclusions     map[string]bool
	birthDateTypes map[string]bool
	commonWords    map[string]bool
	nameLikeTypes  map[string]bool
	locationTypes  map[string]bool
	ipTypes        map[string]bool
	placeholderIPs map[string]bool
}

// DefaultPolicy returns the compiled-in policy tables. These are complete on
// their own; a YAML policy file only overrides the sections it names.
func DefaultPolicy() *Policy {
	p := &Policy{
		Replacements: map[string]string{
			// Personal identifiers
			"PERSON": "person", "NAME": "person", "PATIENT_NAME": "patient",
			// Contact information
			"EMAIL_ADDRESS": "email", "PHONE_NUMBER": "phone", "FAX_NUMBER": "fax",
			"URL": "website", "IP_ADDRESS": "address",
			// Location data
			"LOCATION": "location", "GPE": "location", "LOC": "location",
			"ADDRESS": "address", "STREET_ADDRESS": "address", "CITY": "city",
			"STATE": "state", "ZIP_CODE": "zipcode", "COUNTRY": "country",
			// Organizations
			"ORGANIZATION": "organization", "ORG": "organization",
			"FACILITY": "facility", "HOSPITAL": "facility",
			// Temporal
			"DATE_TIME": "date", "DATE": "date", "TIME": "time",
			"DATE_OF_BIRTH": "date", "DATE_FULL": "date", "DATE_ISO": "date",
			"ADMISSION_DATE": "date", "DISCHARGE_DATE": "date", "DEATH_DATE": "date",
			// Age
			"AGE": "age", "AGE_OVER_89": "age", "AGE_GENERAL": "age",
			// Financial
			"CREDIT_CARD": "payment", "IBAN_CODE": "account", "ACCOUNT_NUMBER": "account",
			"ROUTING_NUMBER": "routing", "BANK_ACCOUNT": "account", "SWIFT_CODE": "code",
			// Government IDs
			"SSN": "identifier", "US_SSN": "identifier", "US_PASSPORT": "identifier",
			"US_DRIVER_LICENSE": "identifier", "DRIVER_LICENSE": "identifier",
			"PASSPORT": "identifier", "TAX_ID": "identifier", "NATIONAL_ID": "identifier",
			// Medical identifiers
			"MEDICAL_RECORD_NUMBER": "medical_record", "HEALTH_PLAN_NUMBER": "health_plan",
			"PATIENT_ID": "patient_id", "PRESCRIPTION_NUMBER": "prescription",
			"NPI_NUMBER": "provider_id", "DEA_NUMBER": "license",
			"MEDICAL_LICENSE": "license", "INSURANCE_NUMBER": "insurance",
			"POLICY_NUMBER": "policy", "MEMBER_ID": "member_id",
			// Biometric and genetic
			"BIOMETRIC_ID": "biometric", "FINGERPRINT": "biometric",
			"RETINA_SCAN": "biometric", "FACIAL_RECOGNITION": "biometric",
			"GENETIC_MARKER": "genetic_data", "DNA_SEQUENCE": "genetic_data",
			// Vehicle and device
			"VIN": "vehicle", "LICENSE_PLATE": "vehicle", "DEVICE_ID": "device",
			"SERIAL_NUMBER": "serial", "MAC_ADDRESS": "address", "IMEI": "device",
			// Certificates and licenses
			"CERTIFICATE_NUMBER": "certificate", "LICENSE_NUMBER": "license",
			// Demographic
			"GENDER": "gender", "GENDER_EXPLICIT": "gender", "ETHNICITY": "demographic",
			"RACE": "demographic", "RELIGION": "demographic",
			"SEXUAL_ORIENTATION": "demographic", "MARITAL_STATUS": "demographic",
			// Credentials
			"CRYPTO": "wallet", "CRYPTO_WALLET": "wallet", "API_KEY": "credential",
			"ACCESS_TOKEN": "credential", "SECRET_KEY": "credential",
			"PASSWORD": "credential", "AUTH_TOKEN": "credential",
		},
		DefaultReplacement: "information",

		// Generic calendar/quantity/product types are detected but preserved.
		// ORGANIZATION is deliberately NOT here: real company names redact.
		// Only the group-affiliation label (NORP) is suppressed.
		Exclusions: []string{
			"DATE", "DATE_TIME", "TIME", "DATE_FULL", "DATE_ISO",
			"QUANTITY", "CARDINAL", "ORDINAL", "PERCENT", "MONEY",
			"PRODUCT", "WORK_OF_ART", "LAW", "LANGUAGE", "EVENT", "NORP",
		},

		BirthDateTypes: []string{"DATE_OF_BIRTH", "DOB", "BIRTH_DATE"},
		BirthKeywords:  []string{"birth", "born", "dob", "birthday"},

		CommonWords: []string{
			// Filler and generic tech vocabulary
			"the", "and", "for", "with", "from", "have", "seen", "tech",
			"evolve", "software", "hardware", "data", "cloud", "code",
			"team", "work", "working", "project", "product", "service",
			"system", "platform", "online", "digital", "internet", "email",
			"meeting", "report", "update", "review", "today", "tomorrow",
			"yesterday", "morning", "evening", "afternoon", "week", "month",
			"year", "time", "new", "good", "great", "best", "thanks", "thank",
			"hello", "dear", "regards", "sincerely",
			// Contraction fragments left behind by tokenizers
			"ve", "ll", "re", "don", "didn", "isn", "aren", "won",
			// Role titles
			"mr", "mrs", "ms", "dr", "prof", "sir", "madam", "manager",
			"director", "engineer", "doctor", "nurse", "patient", "user",
			"admin", "agent", "customer", "client",
			// Days and months
			"monday", "tuesday", "wednesday", "thursday", "friday",
			"saturday", "sunday", "january", "february", "march", "april",
			"may", "june", "july", "august", "september", "october",
			"november", "december",
		},
		NameLikeTypes: []string{
			"PERSON", "NAME", "PATIENT_NAME", "ORGANIZATION", "ORG",
			"FACILITY", "NORP",
		},

		LocationTypes: []string{
			"LOCATION", "GPE", "LOC", "ADDRESS", "STREET_ADDRESS",
			"CITY", "STATE", "COUNTRY",
		},
		StreetIndicators: []string{
			"street", "st.", "avenue", "ave", "road", "rd.", "boulevard",
			"blvd", "lane", "drive", "court", "suite", "apartment", "apt",
			"unit", "floor", "building",
		},

		IPTypes: []string{"IP_ADDRESS"},
		PlaceholderIPs: []string{
			"127.0.0.1", "0.0.0.0", "255.255.255.255",
			"192.168.1.1", "10.0.0.1", "1.2.3.4",
		},

		MinMatchLength: 3,
	}
	p.finalize()
	return p
}

// LoadPolicy reads a YAML policy file and merges it over the defaults.
// Any read or parse failure logs a warning and returns the compiled-in
// policy: a bad policy file degrades configurability, never detection.
func LoadPolicy(path string) *Policy {
	base := DefaultPolicy()
	if path == "" {
		return base
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[POLICY] cannot read %s, using built-in tables: %v", path, err)
		return base
	}

	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		log.Printf("[POLICY] cannot parse %s, using built-in tables: %v", path, err)
		return base
	}

	base.merge(&override)
	base.finalize()
	log.Printf("[POLICY] loaded policy overrides from %s", path)
	return base
}

// merge overlays the non-empty sections of o onto p.
func (p *Policy) merge(o *Policy) {
	for k, v := range o.Replacements {
		p.Replacements[strings.ToUpper(k)] = v
	}
	if o.DefaultReplacement != "" {
		p.DefaultReplacement = o.DefaultReplacement
	}
	if len(o.Exclusions) > 0 {
		p.Exclusions = o.Exclusions
	}
	if len(o.BirthDateTypes) > 0 {
		p.BirthDateTypes = o.BirthDateTypes
	}
	if len(o.BirthKeywords) > 0 {
		p.BirthKeywords = o.BirthKeywords
	}
	if len(o.CommonWords) > 0 {
		p.CommonWords = append(p.CommonWords, o.CommonWords...)
	}
	if len(o.NameLikeTypes) > 0 {
		p.NameLikeTypes = o.NameLikeTypes
	}
	if len(o.LocationTypes) > 0 {
		p.LocationTypes = o.LocationTypes
	}
	if len(o.StreetIndicators) > 0 {
		p.StreetIndicators = o.StreetIndicators
	}
	if len(o.IPTypes) > 0 {
		p.IPTypes = o.IPTypes
	}
	if len(o.PlaceholderIPs) > 0 {
		p.PlaceholderIPs = o.PlaceholderIPs
	}
	if o.MinMatchLength > 0 {
		p.MinMatchLength = o.MinMatchLength
	}
}

// finalize rebuilds the case-normalized lookup sets.
func (p *Policy) finalize() {
	p.replacements = make(map[string]string, len(p.Replacements))
	for k, v := range p.Replacements {
		p.replacements[strings.ToUpper(k)] = v
	}
	p.exclusions = upperSet(p.Exclusions)
	p.birthDateTypes = upperSet(p.BirthDateTypes)
	p.nameLikeTypes = upperSet(p.NameLikeTypes)
	p.locationTypes = upperSet(p.LocationTypes)
	p.ipTypes = upperSet(p.IPTypes)
	p.commonWords = lowerSet(p.CommonWords)
	p.placeholderIPs = lowerSet(p.PlaceholderIPs)
}

func upperSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToUpper(s)] = true
	}
	return m
}

func lowerSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}

// Replacement returns the placeholder for an entity type. Total: unknown
// types map to the default placeholder.
func (p *Policy) Replacement(entityType string) string {
	if r, ok := p.replacements[strings.ToUpper(entityType)]; ok {
		return r
	}
	return p.DefaultReplacement
}

// IsExcluded reports whether the type is preserved by policy.
func (p *Policy) IsExcluded(entityType string) bool {
	return p.exclusions[strings.ToUpper(entityType)]
}

// IsBirthDateType reports whether the type always redacts.
func (p *Policy) IsBirthDateType(entityType string) bool {
	return p.birthDateTypes[strings.ToUpper(entityType)]
}

// HasBirthKeyword reports whether s mentions birth-related vocabulary.
func (p *Policy) HasBirthKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range p.BirthKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsNameLikeType reports whether the common-word filter applies.
func (p *Policy) IsNameLikeType(entityType string) bool {
	return p.nameLikeTypes[strings.ToUpper(entityType)]
}

// IsLocationType reports whether the street-address rule applies.
func (p *Policy) IsLocationType(entityType string) bool {
	return p.locationTypes[strings.ToUpper(entityType)]
}

// IsIPType reports whether the placeholder-IP rule applies.
func (p *Policy) IsIPType(entityType string) bool {
	return p.ipTypes[strings.ToUpper(entityType)]
}

// IsPlaceholderIP reports whether the address is a well-known non-routable
// or documentation address.
func (p *Policy) IsPlaceholderIP(addr string) bool {
	return p.placeholderIPs[strings.ToLower(strings.TrimSpace(addr))]
}

// IsCommonWord reports whether a single lowercase token is everyday
// vocabulary.
func (p *Policy) IsCommonWord(token string) bool {
	return p.commonWords[token]
}

// HasStreetIndicator reports whether the context mentions street-address
// vocabulary.
func (p *Policy) HasStreetIndicator(context string) bool {
	lower := strings.ToLower(context)
	for _, ind := range p.StreetIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// Validate checks internal consistency of a loaded policy.
func (p *Policy) Validate() error {
	if p.DefaultReplacement == "" {
		return fmt.Errorf("policy: default replacement must not be empty")
	}
	if p.MinMatchLength < 1 {
		return fmt.Errorf("policy: min match length must be positive, got %d", p.MinMatchLength)
	}
	for _, t := range p.BirthDateTypes {
		if p.exclusions[strings.ToUpper(t)] {
			return fmt.Errorf("policy: birth date type %s cannot also be excluded", t)
		}
	}
	return nil
}
