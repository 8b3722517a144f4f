package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetHealthStatus(t *testing.T) {
	tests := []struct {
		name  string
		conns map[string]error
		want  string
	}{
		{"no connections", nil, "healthy"},
		{"all connected", map[string]error{"overpass": nil, "taginfo": nil}, "healthy"},
		{"one of three failing", map[string]error{"a": nil, "b": nil, "c": errors.New("down")}, "degraded"},
		{"all failing", map[string]error{"overpass": errors.New("down")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("osmplot", "test")
			for name, err := range tt.conns {
				status := "connected"
				if err != nil {
					status = "error"
				}
				hc.UpdateConnection(name, status, 10, err)
			}

			if got := hc.GetHealth().Status; got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker("osmplot", "test")
	hc.UpdateConnection("overpass", "error", 0, errors.New("timeout"))

	rec := httptest.NewRecorder()
	hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var health ServiceHealth
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Connections["overpass"].LastError != "timeout" {
		t.Errorf("last error = %q, want %q", health.Connections["overpass"].LastError, "timeout")
	}
}

func TestReadinessHandler(t *testing.T) {
	hc := NewHealthChecker("osmplot", "test")
	hc.UpdateConnection("overpass", "connected", 5, nil)
	hc.UpdateConnection("taginfo", "error", 0, errors.New("down"))

	rec := httptest.NewRecorder()
	hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded: status code = %d, want %d", rec.Code, http.StatusOK)
	}

	hc.UpdateConnection("overpass", "error", 0, errors.New("down"))
	rec = httptest.NewRecorder()
	hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestMonitorRecordsChecks(t *testing.T) {
	hc := NewHealthChecker("osmplot", "test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hc.Monitor(ctx, "overpass", time.Hour, func(context.Context) error { return nil })
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hc.GetHealth().Connections["overpass"]; ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := hc.GetHealth().Connections["overpass"].Status; got != "connected" {
		t.Errorf("status = %q, want connected", got)
	}
}
