package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vault-aegis/sentinel/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	projectID := q.Get("project_id")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "project_id query parameter is required"})
		return
	}

	params := chread.ListEventsParams{
		ProjectID: projectID,
		Page:      queryInt(q, "page", 1),
		PageSize:  queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("risk_level"); v != "" {
		params.RiskLevel = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("type"); v != "" {
		params.Type = &v
	}
	if v := q.Get("blocked"); v != "" {
		b := v == "true" || v == "1"
		params.Blocked = &b
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]PIIEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "project_id query parameter is required"})
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), projectID, requestID)
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}

	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	projectID := q.Get("project_id")
	if projectID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "project_id query parameter is required"})
		return
	}

	days := queryInt(q, "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), projectID, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResp{
		Summary: SummaryStatsResp{
			TotalScans: result.Summary.TotalScans,
			Blocked:    result.Summary.Blocked,
			Flagged:    result.Summary.Flagged,
			Clean:      result.Summary.Clean,
		},
		BlockedOverTime: toTimeSeriesResp(result.BlockedOverTime),
		TopTypes:        toTypeCountResp(result.TopTypes),
		RiskLevels:      toRiskLevelResp(result.RiskLevels),
		LatencyPercentiles: LatencyPercentilesResp{
			P50: result.LatencyPercentiles.P50,
			P95: result.LatencyPercentiles.P95,
			P99: result.LatencyPercentiles.P99,
		},
		TopSources: toSourceCountResp(result.TopSources),
	})
}

// eventRowToResp converts a ClickHouse EventRow to the API response.
// Detections are stored as parallel arrays and reconstructed here.
func eventRowToResp(e chread.EventRow) PIIEventResp {
	detections := make([]EventDetectionResp, 0, len(e.DetectionTypes))
	for i, typ := range e.DetectionTypes {
		var label string
		if i < len(e.DetectionLabels) {
			label = e.DetectionLabels[i]
		}
		var confidence float64
		if i < len(e.DetectionConfidences) {
			confidence = e.DetectionConfidences[i]
		}
		var riskLevel string
		if i < len(e.DetectionRiskLevels) {
			riskLevel = e.DetectionRiskLevels[i]
		}
		cat := "unspecified"
		if i < len(e.DetectionCategories) && e.DetectionCategories[i] != "" {
			cat = e.DetectionCategories[i]
		}
		detections = append(detections, EventDetectionResp{
			Type:       typ,
			Label:      label,
			Confidence: confidence,
			RiskLevel:  riskLevel,
			Category:   cat,
		})
	}

	return PIIEventResp{
		RequestID:    e.RequestID,
		ProjectID:    e.ProjectID,
		Source:       nilIfEmpty(e.Source),
		Mode:         e.Mode,
		TextPreview:  e.TextPreview,
		RiskLevel:    e.RiskLevel,
		RiskScore:    int(e.RiskScore),
		Blocked:      e.Blocked == 1,
		Summary:      nilIfEmpty(e.Summary),
		DominantType: nilIfEmpty(e.DominantType),
		Detections:   detections,
		LatencyMs:    e.LatencyMs,
		Timestamp:    e.Timestamp,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func toTimeSeriesResp(buckets []chread.TimeSeriesBucket) []TimeSeriesBucketResp {
	out := make([]TimeSeriesBucketResp, len(buckets))
	for i, b := range buckets {
		out[i] = TimeSeriesBucketResp{Hour: b.Hour, Count: b.Count}
	}
	return out
}

func toTypeCountResp(types []chread.TypeCount) []TypeCountResp {
	out := make([]TypeCountResp, len(types))
	for i, t := range types {
		out[i] = TypeCountResp{Type: t.Type, Count: t.Count}
	}
	return out
}

func toRiskLevelResp(levels []chread.RiskLevelCount) []RiskLevelCountResp {
	out := make([]RiskLevelCountResp, len(levels))
	for i, l := range levels {
		out[i] = RiskLevelCountResp{Level: l.Level, Count: l.Count}
	}
	return out
}

func toSourceCountResp(sources []chread.SourceCount) []SourceCountResp {
	out := make([]SourceCountResp, len(sources))
	for i, s := range sources {
		out[i] = SourceCountResp{Source: s.Source, Count: s.Count}
	}
	return out
}
