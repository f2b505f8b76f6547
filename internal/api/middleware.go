package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vault-aegis/sentinel/internal/auth"
	"go.uber.org/zap"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const projectCtxKey contextKey = iota

// projectFromContext extracts the authenticated project from the request context.
func projectFromContext(ctx context.Context) *auth.ProjectContext {
	v, _ := ctx.Value(projectCtxKey).(*auth.ProjectContext)
	return v
}

// --- Auth middleware ---

// authMiddleware validates Bearer vsk_ tokens via the configured
// Authenticator and injects the authenticated project into the request
// context. The authenticator owns its own stale-while-revalidate cache,
// so this stays off the DB on the hot path.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}

		proj, err := d.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrAuthUnavailable) {
				d.Logger.Error("auth backend unavailable", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Authentication temporarily unavailable"})
				return
			}
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
			return
		}

		ctx := context.WithValue(r.Context(), projectCtxKey, proj)
		next(w, r.WithContext(ctx))
	}
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
