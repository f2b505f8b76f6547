package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse pii_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the pii_events table.
type EventRow struct {
	RequestID    string
	ProjectID    string
	Timestamp    time.Time
	Source       string
	Mode         string
	TextPreview  string
	RiskLevel    string
	RiskScore    uint8
	Blocked      uint8
	Summary      string
	DominantType string

	DetectionTypes       []string
	DetectionLabels      []string
	DetectionConfidences []float64
	DetectionRiskLevels  []string
	DetectionCategories  []string

	LatencyMs float32
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	ProjectID string
	RiskLevel *string
	Source    *string
	Type      *string // matches any detection type in the event
	Blocked   *bool
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

const eventColumns = "request_id, project_id, timestamp, source, mode, text_preview, " +
	"risk_level, risk_score, blocked, summary, dominant_type, " +
	"detection_types, detection_labels, detection_confidences, " +
	"detection_risk_levels, detection_categories, latency_ms"

// ListEvents returns paginated, filtered PII events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"project_id = @project_id"}
	args := []any{
		clickhouse.Named("project_id", params.ProjectID),
	}

	if params.RiskLevel != nil {
		conditions = append(conditions, "risk_level = @risk_level")
		args = append(args, clickhouse.Named("risk_level", *params.RiskLevel))
	}
	if params.Source != nil {
		conditions = append(conditions, "source = @source")
		args = append(args, clickhouse.Named("source", *params.Source))
	}
	if params.Type != nil {
		conditions = append(conditions, "has(detection_types, @type)")
		args = append(args, clickhouse.Named("type", *params.Type))
	}
	if params.Blocked != nil {
		var v uint8
		if *params.Blocked {
			v = 1
		}
		conditions = append(conditions, "blocked = @blocked")
		args = append(args, clickhouse.Named("blocked", v))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM pii_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT %s FROM pii_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by project ID and request ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, projectID, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM pii_events WHERE project_id = @project_id AND request_id = @request_id", eventColumns),
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("request_id", requestID),
	)

	var e EventRow
	if err := scanEvent(row, &e); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

// rowScanner is satisfied by both driver.Row and driver.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, e *EventRow) error {
	return row.Scan(
		&e.RequestID, &e.ProjectID, &e.Timestamp, &e.Source, &e.Mode, &e.TextPreview,
		&e.RiskLevel, &e.RiskScore, &e.Blocked, &e.Summary, &e.DominantType,
		&e.DetectionTypes, &e.DetectionLabels, &e.DetectionConfidences,
		&e.DetectionRiskLevels, &e.DetectionCategories, &e.LatencyMs,
	)
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalScans int `json:"total_scans"`
	Blocked    int `json:"blocked"`
	Flagged    int `json:"flagged"` // detections found but below the block threshold
	Clean      int `json:"clean"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// TypeCount holds a detection type and its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// RiskLevelCount holds a risk level and its count.
type RiskLevelCount struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

// SourceCount holds a source and its count.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	BlockedOverTime    []TimeSeriesBucket `json:"blocked_over_time"`
	TopTypes           []TypeCount        `json:"top_types"`
	RiskLevels         []RiskLevelCount   `json:"risk_levels"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
	TopSources         []SourceCount      `json:"top_sources"`
}

// GetAnalytics returns aggregated analytics for a project over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, projectID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	// Summary counts
	var totalScans, blocked, flagged, clean uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total_scans, "+
			"countIf(blocked = 1) as blocked, "+
			"countIf(blocked = 0 AND notEmpty(detection_types)) as flagged, "+
			"countIf(blocked = 0 AND empty(detection_types)) as clean "+
			"FROM pii_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&totalScans, &blocked, &flagged, &clean)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalScans: int(totalScans),
		Blocked:    int(blocked),
		Flagged:    int(flagged),
		Clean:      int(clean),
	}

	// Blocked over time (hourly)
	botRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM pii_events "+
			"WHERE project_id = @project_id AND blocked = 1 "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics blocked_over_time: %w", err)
	}
	defer func() { _ = botRows.Close() }()
	for botRows.Next() {
		var hour time.Time
		var count uint64
		if err := botRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics blocked_over_time scan: %w", err)
		}
		result.BlockedOverTime = append(result.BlockedOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Top detected types
	typeRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(detection_types) as type, count() as count "+
			"FROM pii_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start "+
			"GROUP BY type ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_types: %w", err)
	}
	defer func() { _ = typeRows.Close() }()
	for typeRows.Next() {
		var typ string
		var count uint64
		if err := typeRows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_types scan: %w", err)
		}
		result.TopTypes = append(result.TopTypes, TypeCount{Type: typ, Count: int(count)})
	}

	// Risk level breakdown
	levelRows, err := r.conn.Query(ctx,
		"SELECT risk_level, count() as count "+
			"FROM pii_events "+
			"WHERE project_id = @project_id AND timestamp >= @range_start "+
			"GROUP BY risk_level ORDER BY count DESC",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics risk_levels: %w", err)
	}
	defer func() { _ = levelRows.Close() }()
	for levelRows.Next() {
		var level string
		var count uint64
		if err := levelRows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics risk_levels scan: %w", err)
		}
		result.RiskLevels = append(result.RiskLevels, RiskLevelCount{Level: level, Count: int(count)})
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM pii_events "+
			"WHERE project_id = @project_id AND timestamp >= @day_start",
		clickhouse.Named("project_id", projectID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Top sources with detections
	srcRows, err := r.conn.Query(ctx,
		"SELECT source, count() as count "+
			"FROM pii_events "+
			"WHERE project_id = @project_id AND notEmpty(detection_types) "+
			"AND source != '' AND timestamp >= @range_start "+
			"GROUP BY source ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_sources: %w", err)
	}
	defer func() { _ = srcRows.Close() }()
	for srcRows.Next() {
		var src string
		var count uint64
		if err := srcRows.Scan(&src, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_sources scan: %w", err)
		}
		result.TopSources = append(result.TopSources, SourceCount{Source: src, Count: int(count)})
	}

	// Ensure slices are non-nil for JSON serialization
	if result.BlockedOverTime == nil {
		result.BlockedOverTime = []TimeSeriesBucket{}
	}
	if result.TopTypes == nil {
		result.TopTypes = []TypeCount{}
	}
	if result.RiskLevels == nil {
		result.RiskLevels = []RiskLevelCount{}
	}
	if result.TopSources == nil {
		result.TopSources = []SourceCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
