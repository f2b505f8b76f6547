package pii

import (
	"context"
	"sort"
	"strings"
)

// maskFunc produces a partially masked replacement for a detected value.
type maskFunc func(value string) string

// maskFuncs dispatches per-type masking. Types not listed fall back to
// maskGeneric. Each rule keeps enough structure for operational debugging
// while destroying the sensitive value.
var maskFuncs = map[string]maskFunc{
	"EMAIL":        maskEmail,
	"CREDIT_CARD":  maskCreditCard,
	"PHONE":        maskPhone,
	"SSN":          maskSSN,
	"AADHAAR":      maskAadhaar,
	"IP_ADDRESS":   maskIP,
	"JWT_TOKEN":    maskToken,
	"API_KEY":      maskToken,
	"ACCESS_TOKEN": maskToken,
	"PRIVATE_KEY":  func(string) string { return "[MASKED_PRIVATE_KEY]" },
	"DB_URL":       maskDBURL,
}

// maskEmail: john.doe@example.com -> j***@example.com
func maskEmail(value string) string {
	local, domain, ok := strings.Cut(value, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 1 {
		return "*@" + domain
	}
	return local[:1] + "***@" + domain
}

// maskCreditCard: 4111 1111 1111 1111 -> **** **** **** 1111
func maskCreditCard(value string) string {
	digits := keepDigits(value)
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

// maskPhone keeps only the last four digits.
func maskPhone(value string) string {
	digits := keepDigits(value)
	if len(digits) < 4 {
		return "***"
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// maskSSN: 123-45-6789 -> ***-**-6789
func maskSSN(value string) string {
	digits := keepDigits(value)
	if len(digits) < 4 {
		return "***"
	}
	return "***-**-" + digits[len(digits)-4:]
}

// maskAadhaar: 1234 5678 9012 -> **** **** 9012
func maskAadhaar(value string) string {
	digits := keepDigits(value)
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** " + digits[len(digits)-4:]
}

// maskIP: 192.168.1.100 -> 192.168.*.*
func maskIP(value string) string {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return "***"
	}
	return parts[0] + "." + parts[1] + ".*.*"
}

// maskToken keeps the first and last four characters of long tokens.
func maskToken(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// maskDBURL keeps the scheme and masks everything after "://".
func maskDBURL(value string) string {
	scheme, _, ok := strings.Cut(value, "://")
	if !ok {
		return "***"
	}
	return scheme + "://***"
}

// maskGeneric keeps the first and last character; values of length <= 2
// are fully masked.
func maskGeneric(value string) string {
	if len(value) <= 2 {
		return strings.Repeat("*", len(value))
	}
	return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// Sanitizer runs the detector and risk engine, then rewrites the text
// according to the operating mode. Safe for concurrent use.
type Sanitizer struct {
	reg      *Registry
	detector *Detector
	risk     *RiskEngine
	mode     Mode
}

// NewSanitizer creates a sanitizer with the given default mode.
func NewSanitizer(reg *Registry, detector *Detector, risk *RiskEngine, mode Mode) *Sanitizer {
	return &Sanitizer{reg: reg, detector: detector, risk: risk, mode: mode}
}

// Mode returns the sanitizer's default operating mode.
func (s *Sanitizer) Mode() Mode {
	return s.mode
}

// Detector returns the underlying detector (for callers that only need
// detection).
func (s *Sanitizer) Detector() *Detector {
	return s.detector
}

// Risk returns the underlying risk engine.
func (s *Sanitizer) Risk() *RiskEngine {
	return s.risk
}

// Sanitize detects, scores, and rewrites text under the default mode.
func (s *Sanitizer) Sanitize(ctx context.Context, text, source string) *SanitizeResult {
	return s.sanitize(ctx, text, source, s.mode, nil)
}

// SanitizeWithMode is Sanitize under an explicit mode.
func (s *Sanitizer) SanitizeWithMode(ctx context.Context, text, source string, mode Mode) *SanitizeResult {
	return s.sanitize(ctx, text, source, mode, nil)
}

// SanitizeWithPolicy applies a per-project policy: mode override and
// disabled types. A nil policy behaves like Sanitize.
func (s *Sanitizer) SanitizeWithPolicy(ctx context.Context, text, source string, pol *PolicyConfig) *SanitizeResult {
	return s.sanitize(ctx, text, source, pol.EffectiveMode(s.mode), pol)
}

func (s *Sanitizer) sanitize(ctx context.Context, text, source string, mode Mode, pol *PolicyConfig) *SanitizeResult {
	if strings.TrimSpace(text) == "" {
		return &SanitizeResult{
			OriginalText:  text,
			SanitizedText: text,
			Risk: RiskScore{
				Level:   RiskLow,
				Score:   0,
				Summary: "No content to scan",
			},
			Mode: mode,
		}
	}

	var detections []Detection
	if pol != nil {
		detections = s.detector.DetectWithPolicy(ctx, text, pol)
	} else {
		detections = s.detector.Detect(ctx, text)
	}

	risk := s.risk.Score(detections, source)

	sanitized := text
	if len(detections) > 0 {
		switch mode {
		case ModeMask:
			sanitized = s.applyMask(text, detections)
		case ModeRedact:
			sanitized = s.applyRedact(text, detections)
		}
	}

	return &SanitizeResult{
		OriginalText:  text,
		SanitizedText: sanitized,
		Detections:    detections,
		Risk:          risk,
		Mode:          mode,
	}
}

// Redact returns text with every detection replaced by its redaction tag,
// independent of the sanitizer's operating mode. Audit sinks use this so
// previews never carry raw values even when the response text was left
// untouched.
func (s *Sanitizer) Redact(text string, detections []Detection) string {
	if len(detections) == 0 {
		return text
	}
	return s.applyRedact(text, detections)
}

// applyMask rewrites detections with their type-specific masks.
// Replacements run in descending start-offset order so earlier offsets
// stay valid as the text shrinks or grows.
func (s *Sanitizer) applyMask(text string, detections []Detection) string {
	for _, det := range descendingByStart(detections) {
		fn, ok := maskFuncs[det.Type]
		if !ok {
			fn = maskGeneric
		}
		text = text[:det.Start] + fn(det.Value) + text[det.End:]
	}
	return text
}

// applyRedact replaces each detected span with its fixed redaction tag.
func (s *Sanitizer) applyRedact(text string, detections []Detection) string {
	for _, det := range descendingByStart(detections) {
		tag := "[REDACTED_" + det.Type + "]"
		if def, ok := s.reg.TypeByID(det.Type); ok {
			tag = def.RedactTag
		}
		text = text[:det.Start] + tag + text[det.End:]
	}
	return text
}

func descendingByStart(detections []Detection) []Detection {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })
	return sorted
}
