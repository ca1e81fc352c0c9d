package taskplan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type capturedRequest struct {
	path string
	auth string
	body map[string]interface{}
}

func newTestClient(t *testing.T, status int) (*Client, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		captured = append(captured, capturedRequest{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			body: body,
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	client.SetHTTPClient(srv.Client())
	return client, &captured
}

func TestRecalculate(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK)

	if err := client.Recalculate(context.Background(), []string{"u-1", "u-2"}); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}

	got := (*captured)[0]
	if got.path != "/v1/task-plans/recalculate" {
		t.Fatalf("path %s", got.path)
	}
	if got.auth != "Bearer test-key" {
		t.Fatalf("auth %q", got.auth)
	}
	ids, ok := got.body["user_ids"].([]interface{})
	if !ok || len(ids) != 2 {
		t.Fatalf("user_ids: %v", got.body)
	}
}

func TestRecalculateEmptyIsNoop(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK)
	if err := client.Recalculate(context.Background(), nil); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if len(*captured) != 0 {
		t.Fatal("empty user list should not issue a request")
	}
}

func TestAdjustStartTimePrefersSubDepartments(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK)

	if err := client.AdjustStartTime(context.Background(), []string{"u-1"}, []string{"sd-1"}); err != nil {
		t.Fatalf("AdjustStartTime: %v", err)
	}
	got := (*captured)[0]
	if got.path != "/v1/task-plans/adjust-start-time" {
		t.Fatalf("path %s", got.path)
	}
	if _, ok := got.body["sd_ids"]; !ok {
		t.Fatalf("expected sd_ids, got %v", got.body)
	}
	if _, ok := got.body["user_ids"]; ok {
		t.Fatalf("user_ids must be omitted when sd_ids present: %v", got.body)
	}
}

func TestAdjustStartTimeFallsBackToUsers(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK)

	if err := client.AdjustStartTime(context.Background(), []string{"u-1"}, nil); err != nil {
		t.Fatalf("AdjustStartTime: %v", err)
	}
	if _, ok := (*captured)[0].body["user_ids"]; !ok {
		t.Fatalf("expected user_ids, got %v", (*captured)[0].body)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	client, _ := newTestClient(t, http.StatusBadRequest)
	if err := client.Recalculate(context.Background(), []string{"u-1"}); err == nil {
		t.Fatal("expected error on 400")
	}
}
