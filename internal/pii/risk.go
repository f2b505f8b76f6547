package pii

import (
	"fmt"
	"math"
	"strings"
)

// RiskEngine aggregates detections into a single risk score and drives
// the block decision. Stateless apart from its threshold.
type RiskEngine struct {
	blockThreshold int
}

// NewRiskEngine creates an engine with the given block threshold.
// A threshold <= 0 falls back to DefaultBlockThreshold.
func NewRiskEngine(blockThreshold int) *RiskEngine {
	if blockThreshold <= 0 {
		blockThreshold = DefaultBlockThreshold
	}
	return &RiskEngine{blockThreshold: blockThreshold}
}

// BlockThreshold returns the configured threshold.
func (e *RiskEngine) BlockThreshold() int {
	return e.blockThreshold
}

// Score computes the aggregate risk for one scan.
//
// Base score comes from the highest risk level present; each additional
// detection adds 5 (capped at +20); the result is weighted by the mean
// confidence and clamped to [1, 100]. The final level is re-derived from
// the final score against the same thresholds as the base map, so a pile
// of low-confidence criticals can land below Critical.
func (e *RiskEngine) Score(detections []Detection, source string) RiskScore {
	if len(detections) == 0 {
		return RiskScore{
			Level:   RiskLow,
			Score:   0,
			Summary: "No PII detected",
		}
	}

	maxRisk := RiskLow
	dominantType := detections[0].Type
	for _, det := range detections {
		if det.Risk > maxRisk {
			maxRisk = det.Risk
			dominantType = det.Type
		}
	}

	base := baseScore(maxRisk)
	multiPenalty := (len(detections) - 1) * 5
	if multiPenalty > 20 {
		multiPenalty = 20
	}
	raw := base + multiPenalty
	if raw > 100 {
		raw = 100
	}

	var sum float64
	for _, det := range detections {
		sum += det.Confidence
	}
	avgConfidence := sum / float64(len(detections))

	final := int(math.Round(float64(raw) * avgConfidence))
	if final < 1 {
		final = 1
	}
	if final > 100 {
		final = 100
	}

	finalLevel := levelForScore(final)

	return RiskScore{
		Level:        finalLevel,
		Score:        final,
		Summary:      buildSummary(detections, source, finalLevel, final),
		Count:        len(detections),
		DominantType: dominantType,
	}
}

// ShouldBlock reports whether a score meets the block threshold.
func (e *RiskEngine) ShouldBlock(score RiskScore) bool {
	return score.Score >= e.blockThreshold
}

// ShouldBlockAt is ShouldBlock against an explicit threshold, used when a
// per-project policy overrides the engine default.
func (e *RiskEngine) ShouldBlockAt(score RiskScore, threshold int) bool {
	if threshold <= 0 {
		threshold = e.blockThreshold
	}
	return score.Score >= threshold
}

// ToAlert builds the structured payload for logging and audit sinks.
// detections may be nil; when present, only metadata goes into the
// breakdown — matched values never leave the process through alerts.
func (e *RiskEngine) ToAlert(score RiskScore, source string, detections []Detection) Alert {
	alert := Alert{
		AlertType:    "PII_DETECTION",
		RiskLevel:    score.Level.String(),
		RiskScore:    score.Score,
		Count:        score.Count,
		DominantType: score.DominantType,
		Source:       source,
		Summary:      score.Summary,
		ShouldBlock:  e.ShouldBlock(score),
	}

	for _, det := range detections {
		alert.Details = append(alert.Details, DetectionDetail{
			Type:       det.Type,
			Label:      det.Label,
			Confidence: det.Confidence,
			RiskLevel:  det.Risk.String(),
			Category:   det.Category.String(),
		})
	}
	return alert
}

// buildSummary lists per-label counts in first-seen order, then the final
// level and score.
func buildSummary(detections []Detection, source string, level RiskLevel, score int) string {
	counts := make(map[string]int)
	var order []string
	for _, det := range detections {
		if _, seen := counts[det.Label]; !seen {
			order = append(order, det.Label)
		}
		counts[det.Label]++
	}

	parts := make([]string, 0, len(order))
	for _, label := range order {
		parts = append(parts, fmt.Sprintf("%dx %s", counts[label], label))
	}

	return fmt.Sprintf("%d PII detection(s) from %s: %s. Risk: %s (%d/100)",
		len(detections), source, strings.Join(parts, ", "), level, score)
}
