package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes PII events to ClickHouse asynchronously.
// Write() is non-blocking — events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *PIIEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN sets TLS when ?secure=true is in the DSN; enforce it here
	// so cloud deployments on port 9440 work without DSN tweaks.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *PIIEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues a PII event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *PIIEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*PIIEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			// Drain remaining events from buffer
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*PIIEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO pii_events (
			request_id, project_id, timestamp, source, mode,
			text_preview, text_hash, text_size,
			risk_level, risk_score, blocked, summary, dominant_type,
			detection_types, detection_labels, detection_confidences,
			detection_risk_levels, detection_categories,
			latency_ms
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		var blockedUint8 uint8
		if e.Blocked {
			blockedUint8 = 1
		}

		if err := batch.Append(
			e.RequestID,
			e.ProjectID,
			e.Timestamp,
			e.Source,
			e.Mode,
			e.TextPreview,
			e.TextHash,
			e.TextSize,
			e.RiskLevel,
			e.RiskScore,
			blockedUint8,
			e.Summary,
			e.DominantType,
			e.DetectionTypes,
			e.DetectionLabels,
			e.DetectionConfidences,
			e.DetectionRiskLevels,
			e.DetectionCategories,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *PIIEvent) {
	w.logger.Info("pii_event",
		zap.String("request_id", event.RequestID),
		zap.String("project_id", event.ProjectID),
		zap.String("source", event.Source),
		zap.String("mode", event.Mode),
		zap.String("risk_level", event.RiskLevel),
		zap.Uint8("risk_score", event.RiskScore),
		zap.Bool("blocked", event.Blocked),
		zap.String("dominant_type", event.DominantType),
		zap.Strings("detection_types", event.DetectionTypes),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
