package api

import (
	"encoding/json"
	"time"
)

// --- POST /v1/sanitize and /v1/detect request/response ---

// SanitizeRequest is the JSON body for POST /v1/sanitize and POST /v1/detect.
type SanitizeRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
	Mode   string `json:"mode,omitempty"` // per-request override: "detect_only", "mask" or "redact"
}

// DetectionResp is one detected span in a response body.
type DetectionResp struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
	Category   string  `json:"category"`
}

// RiskScoreResp is the aggregate risk block in a response body.
type RiskScoreResp struct {
	Level        string `json:"level"`
	Score        int    `json:"score"`
	Summary      string `json:"summary"`
	Count        int    `json:"detections_count"`
	DominantType string `json:"dominant_type,omitempty"`
}

// SanitizeResponse is the JSON body returned by POST /v1/sanitize.
type SanitizeResponse struct {
	RequestID     string          `json:"request_id"`
	SanitizedText string          `json:"sanitized_text"`
	Detections    []DetectionResp `json:"detections"`
	Risk          RiskScoreResp   `json:"risk"`
	Mode          string          `json:"mode"`
	ShouldBlock   bool            `json:"should_block"`
	LatencyMs     float64         `json:"latency_ms"`
}

// DetectResponse is the JSON body returned by POST /v1/detect.
// The input text is never rewritten or echoed back.
type DetectResponse struct {
	RequestID   string          `json:"request_id"`
	Detections  []DetectionResp `json:"detections"`
	Risk        RiskScoreResp   `json:"risk"`
	ShouldBlock bool            `json:"should_block"`
	LatencyMs   float64         `json:"latency_ms"`
}

// --- Project CRUD ---

// CreateProjectReq is the JSON body for POST /api/sentinel/projects.
type CreateProjectReq struct {
	Name string `json:"name"`
}

// CreateProjectResp includes the plaintext API key (shown once).
type CreateProjectResp struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	APIKey        string    `json:"api_key"`
	APIKeyPrefix  string    `json:"api_key_prefix"`
	Mode          string    `json:"mode"`
	ScansPerMonth *int      `json:"scans_per_month"`
	CreatedAt     time.Time `json:"created_at"`
}

// UpdateProjectReq is the JSON body for PATCH /api/sentinel/projects/{id}.
type UpdateProjectReq struct {
	Name          *string `json:"name,omitempty"`
	Mode          *string `json:"mode,omitempty"`
	ScansPerMonth *int    `json:"scans_per_month,omitempty"`
}

// ProjectResp is a project without its plaintext key.
type ProjectResp struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	APIKeyPrefix  string    `json:"api_key_prefix"`
	Mode          string    `json:"mode"`
	ScansPerMonth *int      `json:"scans_per_month"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Policy CRUD ---

// UpdatePolicyReq is the JSON body for PATCH/PUT policy endpoints.
type UpdatePolicyReq struct {
	SanitizeConfig json.RawMessage `json:"sanitize_config,omitempty"`
}

// PolicyResp is a sanitize policy row.
type PolicyResp struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	SanitizeConfig json.RawMessage `json:"sanitize_config"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// --- PII Events ---

// EventDetectionResp is one detection reconstructed from a stored event.
// Matched values are never stored, so there is no value field here.
type EventDetectionResp struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
	Category   string  `json:"category"`
}

// PIIEventResp is a stored scan event.
type PIIEventResp struct {
	RequestID    string               `json:"request_id"`
	ProjectID    string               `json:"project_id"`
	Source       *string              `json:"source"`
	Mode         string               `json:"mode"`
	TextPreview  string               `json:"text_preview"`
	RiskLevel    string               `json:"risk_level"`
	RiskScore    int                  `json:"risk_score"`
	Blocked      bool                 `json:"blocked"`
	Summary      *string              `json:"summary"`
	DominantType *string              `json:"dominant_type"`
	Detections   []EventDetectionResp `json:"detections"`
	LatencyMs    float32              `json:"latency_ms"`
	Timestamp    time.Time            `json:"timestamp"`
}

// EventListResp is the paginated event list.
type EventListResp struct {
	Events   []PIIEventResp `json:"events"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// --- Analytics ---

// AnalyticsResp mirrors chread.AnalyticsResult for the HTTP surface.
type AnalyticsResp struct {
	Summary            SummaryStatsResp       `json:"summary"`
	BlockedOverTime    []TimeSeriesBucketResp `json:"blocked_over_time"`
	TopTypes           []TypeCountResp        `json:"top_types"`
	RiskLevels         []RiskLevelCountResp   `json:"risk_levels"`
	LatencyPercentiles LatencyPercentilesResp `json:"latency_percentiles"`
	TopSources         []SourceCountResp      `json:"top_sources"`
}

// SummaryStatsResp holds aggregate counts.
type SummaryStatsResp struct {
	TotalScans int `json:"total_scans"`
	Blocked    int `json:"blocked"`
	Flagged    int `json:"flagged"`
	Clean      int `json:"clean"`
}

// TimeSeriesBucketResp holds an hourly count.
type TimeSeriesBucketResp struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// TypeCountResp holds a detection type and its count.
type TypeCountResp struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// RiskLevelCountResp holds a risk level and its count.
type RiskLevelCountResp struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

// LatencyPercentilesResp holds latency percentiles.
type LatencyPercentilesResp struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// SourceCountResp holds a source and its count.
type SourceCountResp struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
