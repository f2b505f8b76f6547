package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vault-aegis/sentinel/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests. Must start with "vsk_" and be >= 8 chars.
const testAPIKey = "vsk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// testRow builds a ProjectWithPolicy for the mock store.
func testRow(t *testing.T, id, mode, config string) *store.ProjectWithPolicy {
	t.Helper()
	row := &store.ProjectWithPolicy{
		Project: store.Project{
			ID:         id,
			APIKeyHash: testHash(t),
			Mode:       mode,
		},
	}
	if config != "" {
		row.SanitizeConfig = json.RawMessage(config)
	}
	return row
}

// mockStore implements ProjectStore for testing.
type mockStore struct {
	row       *store.ProjectWithPolicy
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*store.ProjectWithPolicy, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	mock := &mockStore{row: testRow(t, "proj_abc", "redact", "")}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if project.ProjectID != "proj_abc" {
		t.Errorf("expected project ID proj_abc, got %s", project.ProjectID)
	}
	if project.Mode != "redact" {
		t.Errorf("expected mode redact, got %s", project.Mode)
	}
	if project.Policy != nil {
		t.Error("expected nil policy (no sanitize_config)")
	}
	if mock.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", mock.callCount.Load())
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	mock := &mockStore{row: testRow(t, "proj_abc", "redact", "")}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	// First call — cache miss, hits DB
	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if mock.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call after first auth, got %d", mock.callCount.Load())
	}

	// Second call — cache hit, no DB call
	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if mock.callCount.Load() != 1 {
		t.Errorf("expected still 1 DB call (cache hit), got %d", mock.callCount.Load())
	}
	if project.ProjectID != "proj_abc" {
		t.Errorf("expected proj_abc from cache, got %s", project.ProjectID)
	}
}

func TestPostgresAuth_CacheMiss_InvalidKey(t *testing.T) {
	mock := &mockStore{row: testRow(t, "proj_abc", "redact", "")}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	// Use a different API key that won't match the bcrypt hash
	_, err := auth.Authenticate(context.Background(), "vsk_wrong_key_doesnt_match_hash_at_all")
	if err == nil {
		t.Fatal("expected error for invalid key, got nil")
	}
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_ProjectNotFound(t *testing.T) {
	// The store returns (nil, nil) when no project matches the prefix.
	mock := &mockStore{}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error for project not found, got nil")
	}
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_DBDown_ReturnsUnavailable(t *testing.T) {
	mock := &mockStore{
		err: errors.New("connection refused"),
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error when DB is down, got nil")
	}
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestPostgresAuth_PolicyParsing(t *testing.T) {
	mock := &mockStore{
		row: testRow(t, "proj_with_policy", "mask",
			`{"mode": "detect_only", "block_threshold": 90, "disabled_types": ["PHONE", "DOB"]}`),
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if project.Mode != "mask" {
		t.Errorf("expected mask mode, got %s", project.Mode)
	}
	if project.Policy == nil {
		t.Fatal("expected non-nil policy")
	}
	if project.Policy.Mode == nil || *project.Policy.Mode != "detect_only" {
		t.Errorf("expected policy mode detect_only, got %v", project.Policy.Mode)
	}
	if got := project.Policy.EffectiveBlockThreshold(80); got != 90 {
		t.Errorf("expected block_threshold 90, got %d", got)
	}
	if len(project.Policy.DisabledTypes) != 2 {
		t.Errorf("expected 2 disabled types, got %d", len(project.Policy.DisabledTypes))
	}
}

func TestPostgresAuth_EmptySanitizeConfig(t *testing.T) {
	// The lookup query COALESCEs a missing policy row to "{}".
	mock := &mockStore{row: testRow(t, "proj_empty", "redact", "{}")}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Empty "{}" should result in nil policy (server defaults)
	if project.Policy != nil {
		t.Error("expected nil policy for empty sanitize_config")
	}
}

func TestPostgresAuth_NullSanitizeConfig(t *testing.T) {
	mock := &mockStore{row: testRow(t, "proj_null", "redact", "")}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if project.Policy != nil {
		t.Error("expected nil policy for NULL sanitize_config")
	}
}

func TestPostgresAuth_InvalidJSON_FallsBackToDefaults(t *testing.T) {
	mock := &mockStore{row: testRow(t, "proj_bad_json", "redact", `not valid json!!!`)}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	// Should not fail — just use nil policy
	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error (graceful fallback), got: %v", err)
	}
	if project.Policy != nil {
		t.Error("expected nil policy for invalid JSON")
	}
}

func TestPostgresAuth_MissingAPIKey(t *testing.T) {
	mock := &mockStore{}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	// DB should never be called
	if mock.callCount.Load() != 0 {
		t.Error("DB should not be called when API key is missing")
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	mock := &mockStore{row: testRow(t, "proj_stale", "redact", "")}
	cache := NewAuthCache(1 * time.Millisecond) // Very short TTL
	auth := newPostgresAuthenticatorWithStore(mock, cache, zap.NewNop())

	// First call — cache miss
	project, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if project.ProjectID != "proj_stale" {
		t.Fatalf("expected proj_stale, got %s", project.ProjectID)
	}
	if mock.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call, got %d", mock.callCount.Load())
	}

	// Wait for cache to expire
	time.Sleep(5 * time.Millisecond)

	// Update what the store returns so we can verify refresh happened
	mock.row = testRow(t, "proj_stale", "mask", "") // Mode changed!

	// Second call — stale hit, returns old value immediately
	project2, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	// Should return stale value (mode=redact, not mask yet)
	if project2.Mode != "redact" {
		t.Errorf("stale hit should return old mode=redact, got %s", project2.Mode)
	}

	// Wait for background refresh to complete
	time.Sleep(200 * time.Millisecond)

	// Third call — should now have refreshed value
	project3, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if project3.Mode != "mask" {
		t.Errorf("expected refreshed mode=mask, got %s", project3.Mode)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"bearer prefix", "Bearer vsk_abc12345", "vsk_abc12345", nil},
		{"lowercase scheme", "bearer vsk_abc12345", "vsk_abc12345", nil},
		{"bare key", "vsk_abc12345", "vsk_abc12345", nil},
		{"empty header", "", "", ErrMissingAPIKey},
		{"wrong prefix", "Bearer tok_abc12345", "", ErrInvalidAPIKey},
		{"no key", "Bearer ", "", ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearer(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected token %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseSanitizeConfig_InvalidJSON(t *testing.T) {
	_, err := parseSanitizeConfig("not json")
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// Verify the interfaces are satisfied at compile time.
var _ Authenticator = (*PostgresAuthenticator)(nil)
var _ ProjectStore = (*store.Store)(nil)
