package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vault-aegis/sentinel/internal/auth"
	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/storage"
)

// handleSanitize implements POST /v1/sanitize.
// Auth middleware has already validated the Bearer token and injected the project.
func (d *Dependencies) handleSanitize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, proj, ok := d.readScanRequest(w, r)
	if !ok {
		return
	}

	mode := d.resolveMode(req, proj)
	result := d.Sanitizer.SanitizeWithPolicy(r.Context(), req.Text, req.Source, withMode(proj.Policy, mode))

	threshold := proj.Policy.EffectiveBlockThreshold(d.Sanitizer.Risk().BlockThreshold())
	shouldBlock := d.Sanitizer.Risk().ShouldBlockAt(result.Risk, threshold)

	requestID := uuid.New().String()
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	// Fire-and-forget: persist the scan event
	d.writeScanEvent(req, proj.ProjectID, requestID, result, shouldBlock, float32(latencyMs))

	writeJSON(w, http.StatusOK, SanitizeResponse{
		RequestID:     requestID,
		SanitizedText: result.SanitizedText,
		Detections:    detectionsToResp(result.Detections),
		Risk:          riskToResp(result.Risk),
		Mode:          result.Mode.String(),
		ShouldBlock:   shouldBlock,
		LatencyMs:     latencyMs,
	})
}

// handleDetect implements POST /v1/detect.
// Detection and scoring only — the text is never rewritten or echoed back.
func (d *Dependencies) handleDetect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, proj, ok := d.readScanRequest(w, r)
	if !ok {
		return
	}

	result := d.Sanitizer.SanitizeWithPolicy(r.Context(), req.Text, req.Source, withMode(proj.Policy, pii.ModeDetectOnly))

	threshold := proj.Policy.EffectiveBlockThreshold(d.Sanitizer.Risk().BlockThreshold())
	shouldBlock := d.Sanitizer.Risk().ShouldBlockAt(result.Risk, threshold)

	requestID := uuid.New().String()
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	d.writeScanEvent(req, proj.ProjectID, requestID, result, shouldBlock, float32(latencyMs))

	writeJSON(w, http.StatusOK, DetectResponse{
		RequestID:   requestID,
		Detections:  detectionsToResp(result.Detections),
		Risk:        riskToResp(result.Risk),
		ShouldBlock: shouldBlock,
		LatencyMs:   latencyMs,
	})
}

// readScanRequest parses and validates the shared scan request body.
// Writes the error response itself and returns ok=false on failure.
func (d *Dependencies) readScanRequest(w http.ResponseWriter, r *http.Request) (SanitizeRequest, *auth.ProjectContext, bool) {
	var req SanitizeRequest

	r.Body = http.MaxBytesReader(w, r.Body, d.MaxBodyBytes)
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return req, nil, false
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "text is required"})
		return req, nil, false
	}
	if req.Mode != "" {
		if _, ok := pii.ParseMode(req.Mode); !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "mode must be 'detect_only', 'mask' or 'redact'"})
			return req, nil, false
		}
	}

	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return req, nil, false
	}
	return req, proj, true
}

// resolveMode picks the operating mode for a request.
// Precedence: request override > policy override > project mode > server default.
func (d *Dependencies) resolveMode(req SanitizeRequest, proj *auth.ProjectContext) pii.Mode {
	if req.Mode != "" {
		if m, ok := pii.ParseMode(req.Mode); ok {
			return m
		}
	}

	base := d.Sanitizer.Mode()
	if m, ok := pii.ParseMode(proj.Mode); ok {
		base = m
	}
	return proj.Policy.EffectiveMode(base)
}

// withMode returns a policy whose mode is pinned to the given value,
// preserving the other fields. Handles a nil input policy.
func withMode(pol *pii.PolicyConfig, mode pii.Mode) *pii.PolicyConfig {
	s := mode.String()
	out := pii.PolicyConfig{Mode: &s}
	if pol != nil {
		out.BlockThreshold = pol.BlockThreshold
		out.DisabledTypes = pol.DisabledTypes
	}
	return &out
}

// writeScanEvent builds a PIIEvent and fires it to the async event writer.
// The stored preview never carries raw values: the sanitized text, or a
// redacted rendering when the scan mode left the text unmodified.
func (d *Dependencies) writeScanEvent(
	req SanitizeRequest,
	projectID, requestID string,
	result *pii.SanitizeResult,
	blocked bool,
	latencyMs float32,
) {
	types := make([]string, len(result.Detections))
	labels := make([]string, len(result.Detections))
	confidences := make([]float64, len(result.Detections))
	riskLevels := make([]string, len(result.Detections))
	categories := make([]string, len(result.Detections))
	for i, det := range result.Detections {
		types[i] = det.Type
		labels[i] = det.Label
		confidences[i] = det.Confidence
		riskLevels[i] = det.Risk.String()
		categories[i] = det.Category.String()
	}

	hashBytes := sha256.Sum256([]byte(req.Text))

	// In detect_only mode the response text is untouched, so redact the
	// preview before it reaches storage.
	preview := result.SanitizedText
	if result.Mode == pii.ModeDetectOnly && len(result.Detections) > 0 {
		preview = d.Sanitizer.Redact(result.OriginalText, result.Detections)
	}

	event := &storage.PIIEvent{
		RequestID:            requestID,
		ProjectID:            projectID,
		Timestamp:            time.Now(),
		Source:               req.Source,
		Mode:                 result.Mode.String(),
		TextPreview:          storage.TruncatePreview(preview, storage.TextPreviewLength),
		TextHash:             hex.EncodeToString(hashBytes[:]),
		TextSize:             uint32(len(req.Text)),
		RiskLevel:            result.Risk.Level.String(),
		RiskScore:            uint8(result.Risk.Score),
		Blocked:              blocked,
		Summary:              result.Risk.Summary,
		DominantType:         result.Risk.DominantType,
		DetectionTypes:       types,
		DetectionLabels:      labels,
		DetectionConfidences: confidences,
		DetectionRiskLevels:  riskLevels,
		DetectionCategories:  categories,
		LatencyMs:            latencyMs,
	}

	d.Writer.Write(event)
}

func detectionsToResp(detections []pii.Detection) []DetectionResp {
	out := make([]DetectionResp, 0, len(detections))
	for _, det := range detections {
		out = append(out, DetectionResp{
			Type:       det.Type,
			Label:      det.Label,
			Value:      det.Value,
			Start:      det.Start,
			End:        det.End,
			Confidence: det.Confidence,
			RiskLevel:  det.Risk.String(),
			Category:   det.Category.String(),
		})
	}
	return out
}

func riskToResp(score pii.RiskScore) RiskScoreResp {
	return RiskScoreResp{
		Level:        score.Level.String(),
		Score:        score.Score,
		Summary:      score.Summary,
		Count:        score.Count,
		DominantType: score.DominantType,
	}
}
