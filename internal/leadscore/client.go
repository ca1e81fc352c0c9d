// Package leadscore is the API client for the lead-scoring service.
package leadscore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/pkg/httpretry"
)

// Config holds the lead-scoring service endpoint.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Client triggers lead-score recomputation. Only called when the effective
// score threshold or reset period actually changed value.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a lead-scoring service client with retrying transport.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.New(&http.Client{
			Timeout: 30 * time.Second,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// Reset re-runs lead scoring for the scope under the new threshold and reset
// period.
func (c *Client) Reset(ctx context.Context, scopeID string, priority domain.Priority, threshold, resetPeriod int) error {
	payload, err := json.Marshal(map[string]interface{}{
		"scope_id":        scopeID,
		"priority":        priority.String(),
		"score_threshold": threshold,
		"reset_period":    resetPeriod,
	})
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/lead-scores/reset", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("lead scoring API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
