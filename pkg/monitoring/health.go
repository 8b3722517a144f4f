package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// ConnStatus is the last observed state of an upstream service
type ConnStatus struct {
	Status    string `json:"status"`               // "connected", "error"
	Latency   int64  `json:"latency_ms,omitempty"` // Optional latency in milliseconds
	LastError string `json:"last_error,omitempty"`
}

// ServiceHealth is the body served by the health endpoint
type ServiceHealth struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        string                `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	Connections   map[string]ConnStatus `json:"connections"`
	Goroutines    int                   `json:"goroutines"`
}

// HealthChecker tracks upstream connection status
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]ConnStatus
}

// NewHealthChecker creates a new health checker instance
func NewHealthChecker(serviceName, version string) *HealthChecker {
	return &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]ConnStatus),
	}
}

// UpdateConnection updates the status of a connection
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cs := ConnStatus{Status: status, Latency: latencyMs}
	if err != nil {
		cs.LastError = err.Error()
	}
	h.connections[name] = cs
}

// GetHealth returns the current health status. More than half of the
// connections failing makes the service unhealthy; any failure degrades it.
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	errorCount := 0
	connections := make(map[string]ConnStatus, len(h.connections))
	for k, v := range h.connections {
		connections[k] = v
		if v.Status != "connected" {
			errorCount++
		}
	}

	status := "healthy"
	if errorCount > 0 {
		status = "degraded"
		if errorCount > len(h.connections)/2 {
			status = "unhealthy"
		}
	}

	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Connections:   connections,
		Goroutines:    runtime.NumGoroutine(),
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		if err := json.NewEncoder(w).Encode(health); err != nil {
			http.Error(w, fmt.Sprintf("Failed to encode health response: %v", err), http.StatusInternalServerError)
		}
	}
}

// ReadinessHandler reports 200 unless the service is unhealthy
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.GetHealth().Status
		ready := status != "unhealthy"

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ready": ready, "status": status})
	}
}

// Monitor runs check every interval until ctx is done, recording the
// result under name.
func (h *HealthChecker) Monitor(ctx context.Context, name string, interval time.Duration, check func(context.Context) error) {
	run := func() {
		start := time.Now()
		err := check(ctx)
		status := "connected"
		if err != nil {
			status = "error"
		}
		h.UpdateConnection(name, status, time.Since(start).Milliseconds(), err)
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
