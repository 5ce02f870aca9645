package patterns

// Rule tables, grouped by compliance category. Registration order inside a
// group and across groups is significant: keyword-anchored rules come before
// the bare shapes they overlap with.

// registerTemporalRules adds date rules. DATE_OF_BIRTH must precede the
// generic date shapes so dedupe keeps the birth-date match when both fire.
func (r *Registry) registerTemporalRules() {
	r.register("dob_explicit", "DATE_OF_BIRTH",
		`\b(?:dob|date of birth|birth date|born)[\s:]*(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`,
		CategoryTemporal, ConfidenceHigh, true)

	r.register("date_full", "DATE_FULL",
		`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:19|20)?\d{2}\b`,
		CategoryTemporal, ConfidenceDefault, false)

	r.register("date_iso", "DATE_ISO",
		`\b(?:19|20)\d{2}[/-](?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])\b`,
		CategoryTemporal, ConfidenceDefault, false)
}

// registerAgeRules adds age statements. Ages 89 and above are an identifier
// on their own, so AGE_OVER_89 carries the high tier and registers first.
func (r *Registry) registerAgeRules() {
	r.register("age_over_89", "AGE_OVER_89",
		`\b(?:age|aged)[\s:]*(?:89|9\d|1\d{2})\s*(?:years?|yrs?|y\.?o\.?)?\b`,
		CategoryAge, ConfidenceHigh, true)

	r.register("age_general", "AGE_GENERAL",
		`\b(?:age|aged)[\s:]*\d{1,3}\s*(?:years?|yrs?|y\.?o\.?)?\b`,
		CategoryAge, ConfidenceDefault, true)
}

func (r *Registry) registerMedicalRules() {
	r.register("medical_record_number", "MEDICAL_RECORD_NUMBER",
		`\b(?:MRN|medical record|patient id)[\s#:]*[A-Z0-9]{6,12}\b`,
		CategoryMedical, ConfidenceHigh, true)

	r.register("health_plan_number", "HEALTH_PLAN_NUMBER",
		`\b(?:health plan|insurance|policy|member)[\s#:]*[A-Z0-9]{6,20}\b`,
		CategoryMedical, ConfidenceHigh, true)

	r.register("prescription_number", "PRESCRIPTION_NUMBER",
		`\b(?:rx|prescription)[\s#:]*\d{6,12}\b`,
		CategoryMedical, ConfidenceDefault, true)

	// Keyword-anchored form: RE2 has no lookahead, so the bare 10-digit shape
	// qualified by a later "npi" mention becomes a prefix-anchored rule.
	r.register("npi_number", "NPI_NUMBER",
		`\bnpi[\s#:]*\d{10}\b`,
		CategoryMedical, ConfidenceDefault, true)

	r.register("dea_number", "DEA_NUMBER",
		`\b[A-Z]{2}\d{7}\b`,
		CategoryMedical, ConfidenceDefault, false)
}

func (r *Registry) registerGovernmentIDRules() {
	r.register("ssn", "SSN",
		`\b\d{3}-\d{2}-\d{4}\b`,
		CategoryGovernmentID, ConfidenceHigh, false)

	r.register("us_passport", "US_PASSPORT",
		`\b[A-Z]{1,2}\d{6,9}\b`,
		CategoryGovernmentID, ConfidenceDefault, false)

	r.register("us_driver_license", "US_DRIVER_LICENSE",
		`\b[A-Z]{1,2}\d{5,8}\b`,
		CategoryGovernmentID, ConfidenceDefault, false)
}

func (r *Registry) registerFinancialRules() {
	r.register("credit_card", "CREDIT_CARD",
		`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`,
		CategoryFinancial, ConfidenceElevated, false)

	r.register("iban_code", "IBAN_CODE",
		`\b[A-Z]{2}\d{2}[A-Z0-9]{1,30}\b`,
		CategoryFinancial, ConfidenceDefault, false)

	r.register("account_number", "ACCOUNT_NUMBER",
		`\b(?:account|acct|acc)[\s#:]*\d{6,17}\b`,
		CategoryFinancial, ConfidenceDefault, true)

	// Keyword-anchored rewrite of the lookahead form (see npi_number).
	r.register("routing_number", "ROUTING_NUMBER",
		`\b(?:routing|aba|rtn)[\s#:]*\d{9}\b`,
		CategoryFinancial, ConfidenceDefault, true)
}

func (r *Registry) registerCredentialRules() {
	r.register("api_key", "API_KEY",
		`\b(?:api[_-]?key|apikey|access[_-]?token|secret[_-]?key)[\s:=]*['"]?[A-Za-z0-9_\-]{20,}\b`,
		CategoryCredential, ConfidenceElevated, true)

	r.register("password", "PASSWORD",
		`\b(?:password|passwd|pwd)[\s:=]*['"]?[^\s'"]{8,}\b`,
		CategoryCredential, ConfidenceElevated, true)

	r.register("crypto_wallet", "CRYPTO_WALLET",
		`\b(?:0x[a-fA-F0-9]{40}|[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{39,59})\b`,
		CategoryCredential, ConfidenceDefault, false)
}

func (r *Registry) registerContactRules() {
	r.register("email_address", "EMAIL_ADDRESS",
		`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		CategoryContact, ConfidenceDefault, false)

	r.register("phone_number", "PHONE_NUMBER",
		`\b(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
		CategoryContact, ConfidenceDefault, false)

	r.register("url", "URL",
		`https?://[^\s]+`,
		CategoryContact, ConfidenceDefault, false)

	r.register("ip_address", "IP_ADDRESS",
		`\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		CategoryContact, ConfidenceDefault, false)
}

func (r *Registry) registerDeviceRules() {
	r.register("vin", "VIN",
		`\b[A-HJ-NPR-Z0-9]{17}\b`,
		CategoryDevice, ConfidenceDefault, false)

	// Keyword-anchored rewrite of the lookahead form (see npi_number).
	r.register("license_plate", "LICENSE_PLATE",
		`\b(?:license\s+)?plate[\s#:]*[A-Z0-9]{2,8}\b`,
		CategoryDevice, ConfidenceDefault, true)

	r.register("device_id", "DEVICE_ID",
		`\b(?:device|serial|imei|meid)[\s#:]*[A-Z0-9]{8,20}\b`,
		CategoryDevice, ConfidenceDefault, true)

	r.register("mac_address", "MAC_ADDRESS",
		`\b(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}\b`,
		CategoryDevice, ConfidenceDefault, false)
}

func (r *Registry) registerBiometricRules() {
	r.register("biometric_id", "BIOMETRIC_ID",
		`\b(?:fingerprint|retina|iris|facial|biometric)[\s#:]*[A-Z0-9]{8,}\b`,
		CategoryBiometric, ConfidenceDefault, true)

	r.register("genetic_marker", "GENETIC_MARKER",
		`\b(?:DNA|genetic|genome)[\s#:]*[A-Z0-9]{8,}\b`,
		CategoryBiometric, ConfidenceDefault, true)
}

func (r *Registry) registerCertificateRules() {
	r.register("certificate_number", "CERTIFICATE_NUMBER",
		`\b(?:cert|certificate)[\s#:]*[A-Z0-9]{6,15}\b`,
		CategoryCertificate, ConfidenceDefault, true)

	r.register("license_number", "LICENSE_NUMBER",
		`\b(?:license|lic)[\s#:]*[A-Z0-9]{6,15}\b`,
		CategoryCertificate, ConfidenceDefault, true)
}

func (r *Registry) registerDemographicRules() {
	r.register("gender_explicit", "GENDER_EXPLICIT",
		`\b(?:gender|sex)[\s:]*(?:male|female|non-binary|transgender|intersex|other)\b`,
		CategoryDemographic, ConfidenceDefault, true)
}
