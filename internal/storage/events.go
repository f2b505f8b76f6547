package storage

import "time"

// EventWriter is the interface for writing PII scan events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *PIIEvent)
	Close()
}

// PIIEvent represents a single sanitize() result to be persisted.
// It carries the alert projection only: detection metadata, never the
// matched values, and the text preview is taken from the sanitized text.
type PIIEvent struct {
	RequestID    string
	ProjectID    string
	Timestamp    time.Time
	Source       string // caller-supplied origin, e.g. "api_gateway"
	Mode         string
	TextPreview  string // first 500 chars of the SANITIZED text
	TextHash     string // SHA256 of the original text
	TextSize     uint32
	RiskLevel    string
	RiskScore    uint8
	Blocked      bool
	Summary      string
	DominantType string

	DetectionTypes       []string
	DetectionLabels      []string
	DetectionConfidences []float64
	DetectionRiskLevels  []string
	DetectionCategories  []string

	LatencyMs float32
}

// TextPreviewLength is the max chars stored in text_preview.
const TextPreviewLength = 500

// TruncatePreview returns the first N characters (runes) of a text for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePreview(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
