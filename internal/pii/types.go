package pii

// RiskLevel grades the severity of a detection or an aggregate score.
// Ordering is significant: higher values dominate when scoring.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the display name used in summaries and stored events.
func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Category classifies what kind of sensitive data a type carries.
type Category int

const (
	CategoryPersonal Category = iota + 1
	CategoryFinancial
	CategoryAuthSecret
	CategoryConfidential
)

// String returns the lowercase category name (used for storage and JSON).
func (c Category) String() string {
	switch c {
	case CategoryPersonal:
		return "personal"
	case CategoryFinancial:
		return "financial"
	case CategoryAuthSecret:
		return "auth_secret"
	case CategoryConfidential:
		return "confidential"
	default:
		return "unspecified"
	}
}

// Mode selects how detected values are rewritten.
type Mode int

const (
	ModeDetectOnly Mode = iota + 1 // report detections, leave text unchanged
	ModeMask                       // partial masking (j***@example.com)
	ModeRedact                     // full replacement ([REDACTED_EMAIL])
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeDetectOnly:
		return "detect_only"
	case ModeMask:
		return "mask"
	case ModeRedact:
		return "redact"
	default:
		return "unspecified"
	}
}

// ParseMode maps a mode string to its Mode value.
// Unknown strings return (0, false).
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "detect_only":
		return ModeDetectOnly, true
	case "mask":
		return ModeMask, true
	case "redact":
		return ModeRedact, true
	default:
		return 0, false
	}
}

// Detection is a single sensitive-data span found in the scanned text.
// Start/End are byte offsets into the source, half-open [Start, End).
type Detection struct {
	Type       string  // registry identifier, e.g. "CREDIT_CARD"
	Label      string  // human label, denormalized from the registry
	Value      string  // the matched text
	Start      int
	End        int
	Confidence float64 // 0.0 – 1.0
	Risk       RiskLevel
	Category   Category
}

// RiskScore is the aggregate risk for one scan.
type RiskScore struct {
	Level        RiskLevel
	Score        int // 0–100; 0 iff no detections
	Summary      string
	Count        int
	DominantType string // type with the highest risk; "" if no detections
}

// SanitizeResult bundles everything produced by one sanitize call.
type SanitizeResult struct {
	OriginalText  string
	SanitizedText string
	Detections    []Detection
	Risk          RiskScore
	Mode          Mode
}

// Alert is the structured payload emitted to logging and audit sinks.
// It intentionally never carries matched values: DetectionDetail has no
// Value field, so raw sensitive content cannot leak through event logs.
type Alert struct {
	AlertType    string            `json:"alert_type"`
	RiskLevel    string            `json:"risk_level"`
	RiskScore    int               `json:"risk_score"`
	Count        int               `json:"detections_count"`
	DominantType string            `json:"dominant_type,omitempty"`
	Source       string            `json:"source"`
	Summary      string            `json:"summary"`
	ShouldBlock  bool              `json:"should_block"`
	Details      []DetectionDetail `json:"details,omitempty"`
}

// DetectionDetail is the per-detection breakdown included in alerts.
type DetectionDetail struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
	Category   string  `json:"category"`
}
