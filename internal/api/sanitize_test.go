package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vault-aegis/sentinel/internal/auth"
	"github.com/vault-aegis/sentinel/internal/pii"
	"github.com/vault-aegis/sentinel/internal/storage"
	"go.uber.org/zap"
)

const testAPIKey = "vsk_test1234567890abcdef1234567890abcdef"

// fakeAuth returns a fixed project (or error) without touching a database.
type fakeAuth struct {
	project *auth.ProjectContext
	err     error
}

func (f *fakeAuth) Authenticate(_ context.Context, _ string) (*auth.ProjectContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

// captureWriter records events instead of shipping them to ClickHouse.
type captureWriter struct {
	mu     sync.Mutex
	events []*storage.PIIEvent
}

func (c *captureWriter) Write(event *storage.PIIEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureWriter) Close() {}

func (c *captureWriter) last(t *testing.T) *storage.PIIEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("no event written")
	}
	return c.events[len(c.events)-1]
}

func newTestRouter(t *testing.T, a auth.Authenticator) (http.Handler, *captureWriter) {
	t.Helper()
	reg := pii.MustLoadRegistry()
	sanitizer := pii.NewSanitizer(reg, pii.NewDetector(reg, nil, nil), pii.NewRiskEngine(0), pii.ModeRedact)
	writer := &captureWriter{}

	deps := &Dependencies{
		Sanitizer:    sanitizer,
		Writer:       writer,
		Auth:         a,
		Logger:       zap.NewNop(),
		MaxBodyBytes: 1 << 20,
	}
	return NewRouter(deps), writer
}

func redactProject() *auth.ProjectContext {
	return &auth.ProjectContext{ProjectID: "proj_test", Mode: "redact"}
}

func postScan(t *testing.T, router http.Handler, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, &fakeAuth{project: redactProject()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSanitize_RequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t, &fakeAuth{project: redactProject()})

	// No Authorization header at all
	rec := postScan(t, router, "/v1/sanitize", "", SanitizeRequest{Text: "hello"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: expected 401, got %d", rec.Code)
	}

	// Wrong key prefix is rejected before the authenticator runs
	rec = postScan(t, router, "/v1/sanitize", "sk_other_key_format_here", SanitizeRequest{Text: "hello"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong prefix: expected 401, got %d", rec.Code)
	}
}

func TestSanitize_InvalidKey(t *testing.T) {
	router, _ := newTestRouter(t, &fakeAuth{err: auth.ErrInvalidAPIKey})

	rec := postScan(t, router, "/v1/sanitize", testAPIKey, SanitizeRequest{Text: "hello"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestSanitize_AuthBackendDown(t *testing.T) {
	router, _ := newTestRouter(t, &fakeAuth{err: auth.ErrAuthUnavailable})

	rec := postScan(t, router, "/v1/sanitize", testAPIKey, SanitizeRequest{Text: "hello"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestSanitize_HappyPath(t *testing.T) {
	router, writer := newTestRouter(t, &fakeAuth{project: redactProject()})

	rec := postScan(t, router, "/v1/sanitize", testAPIKey, SanitizeRequest{
		Text:   "My SSN is 219-09-9999 and card is 4111111111111111",
		Source: "api",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp SanitizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	want := "My SSN is [REDACTED_SSN] and card is [REDACTED_CREDIT_CARD]"
	if resp.SanitizedText != want {
		t.Errorf("sanitized mismatch:\n got: %s\nwant: %s", resp.SanitizedText, want)
	}
	if resp.RequestID == "" {
		t.Error("request_id must be set")
	}
	if resp.Mode != "redact" {
		t.Errorf("expected mode redact, got %s", resp.Mode)
	}
	if resp.Risk.Score != 95 || resp.Risk.Level != "Critical" {
		t.Errorf("unexpected risk: %+v", resp.Risk)
	}
	if !resp.ShouldBlock {
		t.Error("score 95 must block at the default threshold")
	}
	if len(resp.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(resp.Detections))
	}

	// The persisted event must carry sanitized text only.
	event := writer.last(t)
	if event.RequestID != resp.RequestID {
		t.Error("event request_id mismatch")
	}
	if event.ProjectID != "proj_test" {
		t.Errorf("unexpected project ID: %s", event.ProjectID)
	}
	if strings.Contains(event.TextPreview, "219-09-9999") || strings.Contains(event.TextPreview, "4111111111111111") {
		t.Error("raw values leaked into the event preview")
	}
	if !event.Blocked {
		t.Error("event should record the block decision")
	}
	if event.RiskScore != 95 {
		t.Errorf("unexpected event risk score: %d", event.RiskScore)
	}
	if len(event.DetectionTypes) != 2 || event.DetectionTypes[0] != "SSN" || event.DetectionTypes[1] != "CREDIT_CARD" {
		t.Errorf("unexpected event detection types: %v", event.DetectionTypes)
	}
}

func TestSanitize_RequestModeOverride(t *testing.T) {
	router, writer := newTestRouter(t, &fakeAuth{project: redactProject()})

	text := "Contact john.doe@example.com"
	rec := postScan(t, router, "/v1/sanitize", testAPIKey, SanitizeRequest{Text: text, Mode: "detect_only"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SanitizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Mode != "detect_only" {
		t.Errorf("expected mode detect_only, got %s", resp.Mode)
	}
	if resp.SanitizedText != text {
		t.Errorf("detect_only must not rewrite text, got %q", resp.SanitizedText)
	}
	if len(resp.Detections) != 1 {
		t.Errorf("expected 1 detection, got %d", len(resp.Detections))
	}

	// Even with detect_only pinned by the request, the stored preview is
	// redacted.
	event := writer.last(t)
	if event.TextPreview != "Contact [REDACTED_EMAIL]" {
		t.Errorf("unexpected event preview: %q", event.TextPreview)
	}
}

func TestSanitize_PolicyThresholdOverride(t *testing.T) {
	threshold := 99
	proj := redactProject()
	proj.Policy = &pii.PolicyConfig{BlockThreshold: &threshold}
	router, _ := newTestRouter(t, &fakeAuth{project: proj})

	rec := postScan(t, router, "/v1/sanitize", testAPIKey, SanitizeRequest{
		Text: "My SSN is 219-09-9999 and card is 4111111111111111",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SanitizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Risk.Score != 95 {
		t.Errorf("expected score 95, got %d", resp.Risk.Score)
	}
	if resp.ShouldBlock {
		t.Error("score 95 must not block at policy threshold 99")
	}
}

func TestSanitize_Validation(t *testing.T) {
	router, _ := newTestRouter(t, &fakeAuth{project: redactProject()})

	tests := []struct {
		name string
		body any
	}{
		{"missing text", SanitizeRequest{Source: "api"}},
		{"invalid mode", SanitizeRequest{Text: "hello", Mode: "shred"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postScan(t, router, "/v1/sanitize", testAPIKey, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/sanitize", strings.NewReader("{not json"))
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestDetect_NeverEchoesText(t *testing.T) {
	router, writer := newTestRouter(t, &fakeAuth{project: redactProject()})

	rec := postScan(t, router, "/v1/detect", testAPIKey, SanitizeRequest{
		Text:   "SSN 219-09-9999 card 4111111111111111",
		Source: "chat",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp DetectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Detections) != 2 || resp.Detections[0].Type != "SSN" || resp.Detections[1].Type != "CREDIT_CARD" {
		t.Fatalf("unexpected detections: %+v", resp.Detections)
	}
	if resp.Detections[0].Value != "219-09-9999" {
		t.Errorf("detect response should include the matched value, got %q", resp.Detections[0].Value)
	}

	// Detect leaves the response text untouched, but the stored preview
	// must still be redacted.
	event := writer.last(t)
	if event.Mode != "detect_only" {
		t.Errorf("expected event mode detect_only, got %s", event.Mode)
	}
	if event.Source != "chat" {
		t.Errorf("unexpected event source: %s", event.Source)
	}
	wantPreview := "SSN [REDACTED_SSN] card [REDACTED_CREDIT_CARD]"
	if event.TextPreview != wantPreview {
		t.Errorf("preview mismatch:\n got: %s\nwant: %s", event.TextPreview, wantPreview)
	}
	if strings.Contains(event.TextPreview, "219-09-9999") || strings.Contains(event.TextPreview, "4111111111111111") {
		t.Error("raw values leaked into the event preview")
	}
}

func TestCORS_Preflight(t *testing.T) {
	router, _ := newTestRouter(t, &fakeAuth{project: redactProject()})

	req := httptest.NewRequest(http.MethodOptions, "/v1/sanitize", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers on preflight")
	}
}
