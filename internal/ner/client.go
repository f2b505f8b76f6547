// Package ner provides an optional recognizer backed by a sidecar
// NER service. It is only wired up when SENTINEL_NER_ENDPOINT is set and
// degrades to "no candidates" on any failure.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vault-aegis/sentinel/internal/pii"
	"go.uber.org/zap"
)

const requestTimeout = 2 * time.Second

// Client calls the sidecar's /v1/analyze endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a recognizer client and verifies the sidecar is
// reachable, so a dead endpoint disables NER at first use instead of on
// every scan.
func NewClient(endpoint string, logger *zap.Logger) (*Client, error) {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NewClient: ner sidecar unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NewClient: ner sidecar health returned %d", resp.StatusCode)
	}

	logger.Info("ner recognizer configured", zap.String("endpoint", endpoint))
	return c, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Entities []struct {
		EntityType string  `json:"entity_type"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Score      float64 `json:"score"`
	} `json:"entities"`
}

// Recognize sends text to the sidecar and maps its entities to candidate
// spans. Errors are returned to the detector, which logs and ignores them.
func (c *Client) Recognize(ctx context.Context, text string) ([]pii.Entity, error) {
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("Recognize: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Recognize: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Recognize: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Recognize: sidecar returned %d", resp.StatusCode)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("Recognize: decode: %w", err)
	}

	entities := make([]pii.Entity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		entities = append(entities, pii.Entity{
			Type:  e.EntityType,
			Text:  text[e.Start:e.End],
			Start: e.Start,
			End:   e.End,
			Score: e.Score,
		})
	}
	return entities, nil
}
