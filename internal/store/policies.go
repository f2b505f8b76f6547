package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Policy represents a row in the sanitize_policies table.
type Policy struct {
	ID             string
	ProjectID      string
	SanitizeConfig json.RawMessage // JSONB — raw bytes
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UpdatePolicyParams holds optional fields for partial policy updates.
type UpdatePolicyParams struct {
	SanitizeConfig *json.RawMessage // nil = don't change
}

// ReplacePolicyParams holds fields for a full policy replace.
type ReplacePolicyParams struct {
	SanitizeConfig json.RawMessage
}

// GetPolicy returns the policy for a project, or nil if not found.
func (s *Store) GetPolicy(ctx context.Context, projectID string) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, sanitize_config, created_at, updated_at
		FROM sanitize_policies WHERE project_id = $1`, projectID,
	).Scan(&p.ID, &p.ProjectID, &p.SanitizeConfig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPolicy: %w", err)
	}
	return &p, nil
}

// UpdatePolicy applies a partial update to a policy. Only non-nil fields are changed.
func (s *Store) UpdatePolicy(ctx context.Context, projectID string, params UpdatePolicyParams) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE sanitize_policies SET
			sanitize_config = COALESCE($2, sanitize_config),
			updated_at      = now()
		WHERE project_id = $1
		RETURNING id, project_id, sanitize_config, created_at, updated_at`,
		projectID, nullableJSON(params.SanitizeConfig),
	).Scan(&p.ID, &p.ProjectID, &p.SanitizeConfig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdatePolicy: %w", err)
	}
	return &p, nil
}

// ReplacePolicy fully replaces a policy's configuration.
func (s *Store) ReplacePolicy(ctx context.Context, projectID string, params ReplacePolicyParams) (*Policy, error) {
	sc := params.SanitizeConfig
	if sc == nil {
		sc = json.RawMessage(`{}`)
	}

	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE sanitize_policies SET
			sanitize_config = $2,
			updated_at      = now()
		WHERE project_id = $1
		RETURNING id, project_id, sanitize_config, created_at, updated_at`,
		projectID, sc,
	).Scan(&p.ID, &p.ProjectID, &p.SanitizeConfig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}
	return &p, nil
}

// nullableJSON returns nil (SQL NULL) if the pointer is nil, otherwise the raw bytes.
func nullableJSON(v *json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
