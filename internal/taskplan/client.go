// Package taskplan is the API client for the task-scheduling service. The
// settings engine only ever triggers recomputation here; how schedules are
// derived is owned by that service.
package taskplan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/cadence-settings/internal/pkg/httpretry"
)

// Config holds the scheduling service endpoint.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Client triggers task-plan recomputation in the scheduling service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a scheduling service client with retrying transport.
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

// Recalculate re-derives the forward task plan for the users under their
// now-effective settings.
func (c *Client) Recalculate(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return c.post(ctx, "/v1/task-plans/recalculate", map[string]interface{}{
		"user_ids": userIDs,
	})
}

// AdjustStartTime shifts pending task start times to the new working window.
// Accepts either user ids or sub-department ids.
func (c *Client) AdjustStartTime(ctx context.Context, userIDs, sdIDs []string) error {
	if len(userIDs) == 0 && len(sdIDs) == 0 {
		return nil
	}
	body := map[string]interface{}{}
	if len(sdIDs) > 0 {
		body["sd_ids"] = sdIDs
	} else {
		body["user_ids"] = userIDs
	}
	return c.post(ctx, "/v1/task-plans/adjust-start-time", body)
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
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
		return fmt.Errorf("scheduler API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
