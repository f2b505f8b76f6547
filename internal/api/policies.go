package api

import (
	"encoding/json"
	"net/http"

	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	policy, err := d.Store.GetPolicy(r.Context(), projectID)
	if err != nil {
		d.Logger.Error("failed to get policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleReplacePolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if detail, ok := validateSanitizeConfig(req.SanitizeConfig); !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: detail})
		return
	}

	sc := req.SanitizeConfig
	if sc == nil {
		sc = json.RawMessage(`{}`)
	}

	policy, err := d.Store.ReplacePolicy(r.Context(), projectID, store.ReplacePolicyParams{
		SanitizeConfig: sc,
	})
	if err != nil {
		d.Logger.Error("failed to replace policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if detail, ok := validateSanitizeConfig(req.SanitizeConfig); !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: detail})
		return
	}

	params := store.UpdatePolicyParams{}
	if req.SanitizeConfig != nil {
		params.SanitizeConfig = &req.SanitizeConfig
	}

	policy, err := d.Store.UpdatePolicy(r.Context(), projectID, params)
	if err != nil {
		d.Logger.Error("failed to update policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

// validateSanitizeConfig checks that the submitted config parses and that
// its mode and threshold values are usable before it lands in the DB.
func validateSanitizeConfig(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", true
	}

	var pc pii.PolicyConfig
	if err := json.Unmarshal(raw, &pc); err != nil {
		return "sanitize_config is not a valid policy object", false
	}
	if pc.Mode != nil {
		if _, ok := pii.ParseMode(*pc.Mode); !ok {
			return "sanitize_config.mode must be 'detect_only', 'mask' or 'redact'", false
		}
	}
	if pc.BlockThreshold != nil && (*pc.BlockThreshold < 1 || *pc.BlockThreshold > 100) {
		return "sanitize_config.block_threshold must be 1-100", false
	}
	return "", true
}

func policyToResp(p *store.Policy) PolicyResp {
	sc := p.SanitizeConfig
	if sc == nil {
		sc = json.RawMessage(`{}`)
	}
	return PolicyResp{
		ID:             p.ID,
		ProjectID:      p.ProjectID,
		SanitizeConfig: sc,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
