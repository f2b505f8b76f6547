package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/joho/godotenv"
	"github.com/vault-aegis/sentinel/internal/api"
	"github.com/vault-aegis/sentinel/internal/auth"
	"github.com/vault-aegis/sentinel/internal/chread"
	"github.com/vault-aegis/sentinel/internal/ner"
	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/storage"
	"github.com/vault-aegis/sentinel/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Logger
	logger := mustBuildLogger(envOrDefault("SENTINEL_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("SENTINEL_HTTP_PORT", "8080")
	defaultModeStr := envOrDefault("SENTINEL_MODE", "redact")
	blockThreshold := envOrDefaultInt("SENTINEL_BLOCK_THRESHOLD", pii.DefaultBlockThreshold)
	maxBodyBytes := envOrDefaultInt("SENTINEL_MAX_BODY_BYTES", 1<<20)
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	nerEndpoint := os.Getenv("SENTINEL_NER_ENDPOINT")
	cacheTTL := envOrDefaultInt("SENTINEL_AUTH_CACHE_TTL_S", 30)

	defaultMode, ok := pii.ParseMode(defaultModeStr)
	if !ok {
		logger.Fatal("invalid SENTINEL_MODE", zap.String("mode", defaultModeStr))
	}

	logger.Info("starting sentinel server",
		zap.String("http_port", httpPort),
		zap.String("default_mode", defaultMode.String()),
		zap.Int("block_threshold", blockThreshold),
	)

	// PII type registry — patterns compiled once at startup
	registry, err := pii.LoadRegistry()
	if err != nil {
		logger.Fatal("failed to load pii registry", zap.Error(err))
	}

	// Optional NER recognizer, connected lazily on first scan
	var factory pii.RecognizerFactory
	if nerEndpoint != "" {
		factory = func() (pii.Recognizer, error) {
			return ner.NewClient(nerEndpoint, logger)
		}
		logger.Info("ner recognizer enabled", zap.String("endpoint", nerEndpoint))
	}

	detector := pii.NewDetector(registry, logger, factory)
	risk := pii.NewRiskEngine(blockThreshold)
	sanitizer := pii.NewSanitizer(registry, detector, risk, defaultMode)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (required — auth and project CRUD live here)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	authenticator := auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
		Store:    pgStore,
		CacheTTL: time.Duration(cacheTTL) * time.Second,
		Logger:   logger,
	})

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *chread.Reader
	if clickhouseDSN != "" {
		chReader, err = chread.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	deps := &api.Dependencies{
		Store:        pgStore,
		Sanitizer:    sanitizer,
		Writer:       writer,
		Reader:       chReader,
		Auth:         authenticator,
		Logger:       logger,
		MaxBodyBytes: int64(maxBodyBytes),
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("sentinel server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
