package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func callHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	stats := func() *PoolStats { return &PoolStats{TotalConns: 2, MaxConns: 20, Healthy: true} }
	rec, body := callHealth(t, HealthHandler(fakePinger{}, stats))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected status %v", body["status"])
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected pool stats, got %v", body["pool"])
	}
	if pool["maxConns"] != float64(20) {
		t.Errorf("expected camelCase pool stats, got %v", pool)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	stats := func() *PoolStats { return &PoolStats{TotalConns: 1, Healthy: true} }
	rec, body := callHealth(t, HealthHandler(fakePinger{err: errors.New("connection refused")}, stats))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" || body["error"] != "connection refused" {
		t.Errorf("unexpected body %v", body)
	}
	pool := body["pool"].(map[string]interface{})
	if pool["healthy"] != false {
		t.Error("expected pool to be reported unhealthy")
	}
}

func TestHealthHandler_NoStats(t *testing.T) {
	_, body := callHealth(t, HealthHandler(fakePinger{}, nil))
	if _, ok := body["pool"]; ok {
		t.Error("did not expect pool stats")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrNoRows) {
		t.Error("expected ErrNoRows to be not found")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("did not expect arbitrary error to be not found")
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected no transaction in empty context")
	}
}
