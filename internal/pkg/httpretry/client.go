// Package httpretry wraps an HTTP client with bounded retries and jittered
// exponential backoff for calls to downstream services.
package httpretry

import (
	"io"
	"math/rand"
	"net/http"
	"time"
)

// HTTPDoer executes HTTP requests. Both *http.Client and *Client satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client retries transient failures: network errors and 429/5xx responses.
// Client errors (4xx other than 429) return immediately, as does context
// cancellation.
type Client struct {
	inner     HTTPDoer
	attempts  int
	baseDelay time.Duration
}

// New wraps inner with up to attempts total tries. A nil inner uses a
// default http.Client with a 30s timeout.
func New(inner HTTPDoer, attempts int) *Client {
	if inner == nil {
		inner = &http.Client{Timeout: 30 * time.Second}
	}
	if attempts < 1 {
		attempts = 3
	}
	return &Client{inner: inner, attempts: attempts, baseDelay: 500 * time.Millisecond}
}

// Do executes the request, retrying transient failures. The final response
// is returned as-is so callers can inspect status and body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.backoff(i)):
			}
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) || i == c.attempts-1 {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt-1)
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	// full jitter on top of a half-base floor
	return time.Duration(rand.Int63n(int64(d)) + int64(c.baseDelay)/2)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
