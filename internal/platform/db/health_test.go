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

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pinger     Pinger
		wantCode   int
		wantStatus string
	}{
		{"healthy", fakePinger{}, http.StatusOK, "healthy"},
		{"unhealthy", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := HealthHandler(tt.pinger)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status %q, got %v", tt.wantStatus, body["status"])
			}
			if _, ok := body["pool"]; ok {
				t.Error("expected no pool stats for a non-pool pinger")
			}
		})
	}
}

func TestPoolStats_JSONTags(t *testing.T) {
	data, err := json.Marshal(PoolStats{TotalConns: 3, IdleConns: 1, AcquiredConns: 2, MaxConns: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for key, want := range map[string]int{"total_conns": 3, "idle_conns": 1, "acquired_conns": 2, "max_conns": 10} {
		if m[key] != want {
			t.Errorf("expected %s=%d, got %d", key, want, m[key])
		}
	}
}

func TestPoolConfig_Settings(t *testing.T) {
	pc, err := PoolConfig{URL: "postgres://u:p@localhost:5432/deid", MaxConns: 8, MinConns: 2}.Settings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.MaxConns != 8 || pc.MinConns != 2 {
		t.Errorf("expected 8/2 conns, got %d/%d", pc.MaxConns, pc.MinConns)
	}
	if pc.ConnConfig.Database != "deid" {
		t.Errorf("expected database 'deid', got %q", pc.ConnConfig.Database)
	}

	if _, err := (PoolConfig{URL: "postgres://u:p@localhost/deid", MaxConns: 1, MinConns: 4}).Settings(); err == nil {
		t.Error("expected error when min conns exceed max conns")
	}
	if _, err := (PoolConfig{URL: "postgres://u:p@localhost/deid?pool_max_conns=abc"}).Settings(); err == nil {
		t.Error("expected error for an invalid url")
	}
}
