package api

import (
	"database/sql"
	"net/http"

	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	project, _, plainKey, err := d.Store.CreateProject(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create project", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create project"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateProjectResp{
		ID:            project.ID,
		Name:          project.Name,
		APIKey:        plainKey,
		APIKeyPrefix:  project.APIKeyPrefix,
		Mode:          project.Mode,
		ScansPerMonth: project.ScansPerMonth,
		CreatedAt:     project.CreatedAt,
	})
}

func (d *Dependencies) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := d.Store.ListProjects(r.Context())
	if err != nil {
		d.Logger.Error("failed to list projects", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list projects"})
		return
	}

	resp := make([]ProjectResp, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, projectToResp(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("project_id")
	project, err := d.Store.GetProject(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get project", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get project"})
		return
	}
	if project == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Project not found."})
		return
	}
	writeJSON(w, http.StatusOK, projectToResp(project))
}

func (d *Dependencies) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("project_id")

	var req UpdateProjectReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	// Validate name if provided
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	// Validate mode if provided
	if req.Mode != nil {
		if _, ok := pii.ParseMode(*req.Mode); !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "mode must be 'detect_only', 'mask' or 'redact'"})
			return
		}
	}

	project, err := d.Store.UpdateProject(r.Context(), id, store.UpdateProjectParams{
		Name:          req.Name,
		Mode:          req.Mode,
		ScansPerMonth: req.ScansPerMonth,
	})
	if err != nil {
		d.Logger.Error("failed to update project", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update project"})
		return
	}
	if project == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Project not found."})
		return
	}
	writeJSON(w, http.StatusOK, projectToResp(project))
}

func (d *Dependencies) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("project_id")
	err := d.Store.DeleteProject(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Project not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete project", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete project"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("project_id")
	project, plainKey, err := d.Store.RotateAPIKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: project.APIKeyPrefix,
	})
}

func projectToResp(p *store.Project) ProjectResp {
	return ProjectResp{
		ID:            p.ID,
		Name:          p.Name,
		APIKeyPrefix:  p.APIKeyPrefix,
		Mode:          p.Mode,
		ScansPerMonth: p.ScansPerMonth,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
