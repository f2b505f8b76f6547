package api

import (
	"net/http"

	"github.com/vault-aegis/sentinel/internal/auth"
	"github.com/vault-aegis/sentinel/internal/chread"
	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/storage"
	"github.com/vault-aegis/sentinel/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store        *store.Store // nil if Postgres unavailable
	Sanitizer    *pii.Sanitizer
	Writer       storage.EventWriter
	Reader       *chread.Reader // nil if ClickHouse unavailable
	Auth         auth.Authenticator
	Logger       *zap.Logger
	MaxBodyBytes int64 // request body cap for scan endpoints
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Scan endpoints (auth required via Bearer vsk_ token)
	mux.HandleFunc("POST /v1/sanitize", deps.authMiddleware(deps.handleSanitize))
	mux.HandleFunc("POST /v1/detect", deps.authMiddleware(deps.handleDetect))

	// Project CRUD (no auth — dashboard auth added later)
	if deps.Store != nil {
		mux.HandleFunc("POST /api/sentinel/projects", deps.handleCreateProject)
		mux.HandleFunc("GET /api/sentinel/projects", deps.handleListProjects)
		mux.HandleFunc("GET /api/sentinel/projects/{project_id}", deps.handleGetProject)
		mux.HandleFunc("PATCH /api/sentinel/projects/{project_id}", deps.handleUpdateProject)
		mux.HandleFunc("DELETE /api/sentinel/projects/{project_id}", deps.handleDeleteProject)
		mux.HandleFunc("POST /api/sentinel/projects/{project_id}/rotate-key", deps.handleRotateKey)

		// Policy CRUD (no auth)
		mux.HandleFunc("GET /api/sentinel/projects/{project_id}/policy", deps.handleGetPolicy)
		mux.HandleFunc("PUT /api/sentinel/projects/{project_id}/policy", deps.handleReplacePolicy)
		mux.HandleFunc("PATCH /api/sentinel/projects/{project_id}/policy", deps.handleUpdatePolicy)
	}

	// Events & Analytics (no auth)
	mux.HandleFunc("GET /api/sentinel/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/sentinel/events/{request_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/sentinel/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
