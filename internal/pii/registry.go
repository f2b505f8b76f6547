package pii

import (
	"fmt"
	"regexp"
)

// TypeDefinition is one entry in the sensitive-data type registry.
// Definitions are immutable after LoadRegistry returns.
type TypeDefinition struct {
	ID         string
	Label      string
	Category   Category
	Risk       RiskLevel
	Confidence float64
	RedactTag  string
}

// typeDefs is the full registry of supported types. PERSON_NAME and
// PHYSICAL_ADDRESS have no regex pattern and are only produced by the
// optional entity recognizer.
var typeDefs = []TypeDefinition{
	// Personal identifiers
	{ID: "EMAIL", Label: "Email Address", Category: CategoryPersonal, Risk: RiskHigh, Confidence: 0.95, RedactTag: "[REDACTED_EMAIL]"},
	{ID: "PHONE", Label: "Phone Number", Category: CategoryPersonal, Risk: RiskHigh, Confidence: 0.85, RedactTag: "[REDACTED_PHONE]"},
	{ID: "SSN", Label: "Social Security Number", Category: CategoryPersonal, Risk: RiskCritical, Confidence: 0.92, RedactTag: "[REDACTED_SSN]"},
	{ID: "AADHAAR", Label: "Aadhaar Number", Category: CategoryPersonal, Risk: RiskCritical, Confidence: 0.90, RedactTag: "[REDACTED_AADHAAR]"},
	{ID: "PASSPORT", Label: "Passport Number", Category: CategoryPersonal, Risk: RiskHigh, Confidence: 0.80, RedactTag: "[REDACTED_PASSPORT]"},
	{ID: "DRIVERS_LICENSE", Label: "Driver's License Number", Category: CategoryPersonal, Risk: RiskHigh, Confidence: 0.75, RedactTag: "[REDACTED_DL]"},
	{ID: "DOB", Label: "Date of Birth", Category: CategoryPersonal, Risk: RiskMedium, Confidence: 0.70, RedactTag: "[REDACTED_DOB]"},
	{ID: "PERSON_NAME", Label: "Person Name", Category: CategoryPersonal, Risk: RiskMedium, Confidence: 0.65, RedactTag: "[REDACTED_NAME]"},

	// Financial information
	{ID: "CREDIT_CARD", Label: "Credit Card Number", Category: CategoryFinancial, Risk: RiskCritical, Confidence: 0.98, RedactTag: "[REDACTED_CREDIT_CARD]"},
	{ID: "CVV", Label: "CVV Code", Category: CategoryFinancial, Risk: RiskCritical, Confidence: 0.70, RedactTag: "[REDACTED_CVV]"},
	{ID: "BANK_ACCOUNT", Label: "Bank Account Number", Category: CategoryFinancial, Risk: RiskHigh, Confidence: 0.75, RedactTag: "[REDACTED_BANK_ACCT]"},
	{ID: "IFSC", Label: "IFSC Code", Category: CategoryFinancial, Risk: RiskMedium, Confidence: 0.90, RedactTag: "[REDACTED_IFSC]"},
	{ID: "IBAN", Label: "IBAN", Category: CategoryFinancial, Risk: RiskHigh, Confidence: 0.88, RedactTag: "[REDACTED_IBAN]"},

	// Authentication secrets
	{ID: "API_KEY", Label: "API Key", Category: CategoryAuthSecret, Risk: RiskCritical, Confidence: 0.90, RedactTag: "[REDACTED_API_KEY]"},
	{ID: "JWT_TOKEN", Label: "JWT Token", Category: CategoryAuthSecret, Risk: RiskCritical, Confidence: 0.95, RedactTag: "[REDACTED_JWT]"},
	{ID: "PRIVATE_KEY", Label: "Private Key", Category: CategoryAuthSecret, Risk: RiskCritical, Confidence: 0.97, RedactTag: "[REDACTED_PRIVATE_KEY]"},
	{ID: "PASSWORD", Label: "Password", Category: CategoryAuthSecret, Risk: RiskCritical, Confidence: 0.80, RedactTag: "[REDACTED_PASSWORD]"},
	{ID: "ACCESS_TOKEN", Label: "Access Token", Category: CategoryAuthSecret, Risk: RiskCritical, Confidence: 0.88, RedactTag: "[REDACTED_TOKEN]"},

	// Other confidential data
	{ID: "IP_ADDRESS", Label: "IP Address", Category: CategoryConfidential, Risk: RiskMedium, Confidence: 0.85, RedactTag: "[REDACTED_IP]"},
	{ID: "PHYSICAL_ADDRESS", Label: "Physical Address", Category: CategoryConfidential, Risk: RiskHigh, Confidence: 0.60, RedactTag: "[REDACTED_ADDRESS]"},
	{ID: "EMPLOYEE_ID", Label: "Employee ID", Category: CategoryConfidential, Risk: RiskMedium, Confidence: 0.70, RedactTag: "[REDACTED_EMP_ID]"},
	{ID: "DB_URL", Label: "Database URL", Category: CategoryConfidential, Risk: RiskCritical, Confidence: 0.92, RedactTag: "[REDACTED_DB_URL]"},
}

// patternDef binds a type to its regex. The order of this table IS the
// detection priority: earlier entries claim spans before later ones, which
// is what lets a private-key block suppress the digit runs inside it.
// Changing the order changes which type wins on ambiguous input.
//
// innerSpan marks patterns whose capture group 1 is the detection span
// (used to exclude surrounding context such as a "password:" prefix).
type patternDef struct {
	typeID    string
	expr      string
	innerSpan bool
}

var patternDefs = []patternDef{
	// Auth secrets (highest priority)
	{typeID: "PRIVATE_KEY", expr: `-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]+?-----END (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`},
	{typeID: "JWT_TOKEN", expr: `\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`},
	{typeID: "API_KEY", expr: `(?:api[_\- ]?key|secret[_\- ]?key|access[_\- ]?key)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,})['"]?`, innerSpan: true},
	{typeID: "ACCESS_TOKEN", expr: `(?:bearer|token|access_token|auth_token)\s*[:=]?\s*['"]?([A-Za-z0-9_\-\.]{20,})['"]?`, innerSpan: true},
	{typeID: "PASSWORD", expr: `(?:password|passwd|pwd)\s*[:=]\s*['"]?\S{4,}['"]?`},

	// Database URLs
	{typeID: "DB_URL", expr: `(?:mongodb|postgres(?:ql)?|mysql|redis|sqlite|mssql)://\S+`},

	// Financial
	{typeID: "CREDIT_CARD", expr: `\b(?:4[0-9]{3}|5[1-5][0-9]{2}|3[47][0-9]|6(?:011|5[0-9]{2}))[\s\-]?[0-9]{4}[\s\-]?[0-9]{4}[\s\-]?[0-9]{1,4}\b`},
	{typeID: "IBAN", expr: `\b[A-Z]{2}\d{2}[\s]?[A-Z0-9]{4}[\s]?(?:[A-Z0-9]{4}[\s]?){2,7}[A-Z0-9]{1,4}\b`},
	{typeID: "IFSC", expr: `\b[A-Z]{4}0[A-Z0-9]{6}\b`},
	{typeID: "CVV", expr: `\bcvv\s*[:=]?\s*\d{3,4}\b`},
	{typeID: "BANK_ACCOUNT", expr: `(?:account|acct)\s*(?:no|number|#)?\s*[:=]?\s*\d{9,18}`},

	// Personal identifiers
	{typeID: "EMAIL", expr: `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Z|a-z]{2,}\b`},
	{typeID: "SSN", expr: `\b\d{3}[\-\s]?\d{2}[\-\s]?\d{4}\b`},
	{typeID: "AADHAAR", expr: `\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`},
	{typeID: "PHONE", expr: `(?:\+?\d{1,3}[\s\-]?)?(?:\(?\d{2,4}\)?[\s\-]?)?\d{3,4}[\s\-]?\d{3,4}\b`},
	{typeID: "PASSPORT", expr: `\b[A-Z][0-9]{7}\b`},
	{typeID: "DRIVERS_LICENSE", expr: `\b(?:DL|D\.L\.)[\s\-]?[A-Z0-9]{5,15}\b`},
	{typeID: "DOB", expr: `\b(?:\d{2}[/\-]\d{2}[/\-]\d{4}|\d{4}[/\-]\d{2}[/\-]\d{2})\b`},

	// Confidential
	{typeID: "IP_ADDRESS", expr: `\b(?:\d{1,3}\.){3}\d{1,3}\b`},
	{typeID: "EMPLOYEE_ID", expr: `\b(?:emp|employee)\s*(?:id|#|no)?\s*[:=]?\s*[A-Z0-9]{4,12}\b`},
}

// riskScoreMap is the base numeric score per risk level. The same values
// double as thresholds when re-deriving a level from a final score.
var riskScoreMap = map[RiskLevel]int{
	RiskLow:      25,
	RiskMedium:   50,
	RiskHigh:     75,
	RiskCritical: 95,
}

// DefaultBlockThreshold is the score at or above which ShouldBlock fires.
const DefaultBlockThreshold = 80

// typePattern is a compiled pattern bound to its type definition.
type typePattern struct {
	def       TypeDefinition
	re        *regexp.Regexp
	innerSpan bool
}

// Registry holds the compiled pattern table and scoring constants.
// It is read-only after LoadRegistry and safe to share across goroutines.
type Registry struct {
	types    map[string]TypeDefinition
	patterns []typePattern // in detection-priority order
}

// LoadRegistry compiles the pattern table. A pattern that fails to compile
// is a fatal configuration error: a corrupt table would silently
// under-detect, so callers must not proceed.
//
// All patterns are compiled case-insensitive and multi-line.
func LoadRegistry() (*Registry, error) {
	types := make(map[string]TypeDefinition, len(typeDefs))
	for _, def := range typeDefs {
		types[def.ID] = def
	}

	patterns := make([]typePattern, 0, len(patternDefs))
	for _, pd := range patternDefs {
		def, ok := types[pd.typeID]
		if !ok {
			return nil, fmt.Errorf("LoadRegistry: pattern references unknown type %q", pd.typeID)
		}
		re, err := regexp.Compile("(?im)" + pd.expr)
		if err != nil {
			return nil, fmt.Errorf("LoadRegistry: compile pattern for %s: %w", pd.typeID, err)
		}
		patterns = append(patterns, typePattern{def: def, re: re, innerSpan: pd.innerSpan})
	}

	return &Registry{types: types, patterns: patterns}, nil
}

// MustLoadRegistry is LoadRegistry for tests and tools that cannot proceed
// without a registry.
func MustLoadRegistry() *Registry {
	reg, err := LoadRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

// TypeByID returns the definition for a type identifier.
func (r *Registry) TypeByID(id string) (TypeDefinition, bool) {
	def, ok := r.types[id]
	return def, ok
}

// TypeIDs returns all registered type identifiers.
func (r *Registry) TypeIDs() []string {
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	return ids
}

// baseScore returns the numeric base score for a risk level.
func baseScore(level RiskLevel) int {
	if s, ok := riskScoreMap[level]; ok {
		return s
	}
	return riskScoreMap[RiskLow]
}

// levelForScore re-derives a risk level from a final numeric score using
// the same thresholds as the base score map.
func levelForScore(score int) RiskLevel {
	switch {
	case score >= riskScoreMap[RiskCritical]:
		return RiskCritical
	case score >= riskScoreMap[RiskHigh]:
		return RiskHigh
	case score >= riskScoreMap[RiskMedium]:
		return RiskMedium
	default:
		return RiskLow
	}
}
