package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ProjectStore is the slice of the project store the authenticator needs.
// *store.Store satisfies it; tests inject a mock.
type ProjectStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.ProjectWithPolicy, error)
}

// PostgresAuthenticator validates API keys against the projects table.
// Uses AuthCache with stale-while-revalidate to avoid DB + bcrypt on the hot path.
// Auth failures always return an error — no scanning runs without valid auth.
type PostgresAuthenticator struct {
	store  ProjectStore
	cache  *AuthCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	Store    *store.Store
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new authenticator backed by PostgreSQL.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  cfg.Store,
		cache:  NewAuthCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresAuthenticatorWithStore creates an authenticator with an injected store (for testing).
func newPostgresAuthenticatorWithStore(store ProjectStore, cache *AuthCache, logger *zap.Logger) *PostgresAuthenticator {
	return &PostgresAuthenticator{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Authenticate validates the API key against the database.
//
// Flow:
//  1. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately (sub-microsecond)
//     - Stale hit: return stale project, spawn background refresh
//     - Miss: do full DB + bcrypt lookup synchronously
//  2. On DB error: return ErrAuthUnavailable
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*ProjectContext, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	// 1. Cache lookup
	result := a.cache.Get(apiKey)

	if result.Hit {
		// Stale hit — kick off background refresh, return stale value immediately
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Project, nil
	}

	// 2. Cache miss — do full lookup synchronously
	project, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return a.handleLookupError(err)
	}

	a.cache.Set(apiKey, project)
	return project, nil
}

// backgroundRefresh performs the DB + bcrypt lookup in a background goroutine.
// Errors are logged but don't affect the caller (they already got the stale value).
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	project, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed",
			zap.Error(err),
		)
		// Don't update cache — stale entry remains. Next stale read will retry.
		// Reset the refreshing flag so the next stale read can try again.
		a.cache.Delete(apiKey)
		return
	}

	a.cache.Set(apiKey, project)
}

// lookupAndVerify does the full DB prefix lookup + bcrypt verification + policy parsing.
func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*ProjectContext, error) {
	// api_key_prefix is the first 8 chars (e.g. "vsk_abcd")
	if len(apiKey) < 8 {
		return nil, ErrInvalidAPIKey
	}
	prefix := apiKey[:8]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if row == nil {
		// No project with this prefix — reject
		return nil, ErrInvalidAPIKey
	}

	// bcrypt verify
	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	// Parse per-project overrides from sanitize_config JSONB.
	var policy *pii.PolicyConfig
	if raw := string(row.SanitizeConfig); raw != "" && raw != "{}" && raw != "null" {
		parsed, err := parseSanitizeConfig(raw)
		if err != nil {
			a.logger.Warn("failed to parse sanitize_config, using defaults",
				zap.String("project_id", row.ID),
				zap.Error(err),
			)
			// Don't fail — just use nil policy (server defaults)
		} else {
			policy = parsed
		}
	}

	return &ProjectContext{
		ProjectID: row.ID,
		Mode:      row.Mode,
		Policy:    policy,
	}, nil
}

// handleLookupError returns the appropriate error — never scans on auth failure.
func (a *PostgresAuthenticator) handleLookupError(lookupErr error) (*ProjectContext, error) {
	if errors.Is(lookupErr, ErrInvalidAPIKey) {
		return nil, ErrInvalidAPIKey
	}

	// DB error (timeout, connection refused, etc.) — return unavailable
	a.logger.Warn("auth DB unreachable",
		zap.Error(lookupErr),
	)
	return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, lookupErr)
}

// parseSanitizeConfig parses the sanitize_config JSON into a PolicyConfig.
func parseSanitizeConfig(raw string) (*pii.PolicyConfig, error) {
	var pc pii.PolicyConfig
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		return nil, fmt.Errorf("parseSanitizeConfig: %w", err)
	}
	return &pc, nil
}
