package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealthzBareLiveness(t *testing.T) {
	h := NewHealthHandler(true, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["telephony_enabled"] != true {
		t.Fatalf("unexpected payload: %v", resp)
	}
	if resp["call_window"] != "unrestricted" || resp["call_window_active"] != true {
		t.Fatalf("unexpected window info: %v", resp)
	}
}

func TestHandleHealthzFailingCheck(t *testing.T) {
	h := NewHealthHandler(false, nil, map[string]func(context.Context) error{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["postgres"] != "ok" || resp.Checks["redis"] == "ok" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}
