// Package monitoring exposes Prometheus metrics and health reporting for osmplot.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Service name for metrics
	ServiceName = "osmplot"
)

var (
	// MCP request metrics
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmplot_mcp_requests_total",
			Help: "Total number of MCP requests processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmplot_mcp_request_duration_seconds",
			Help:    "MCP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"tool"},
	)

	// External service metrics
	ExternalServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmplot_external_service_requests_total",
			Help: "Total number of external service requests",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalServiceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmplot_external_service_request_duration_seconds",
			Help:    "External service request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 180.0},
		},
		[]string{"service", "operation"},
	)

	// Rate limiting metrics
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmplot_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	// Pipeline metrics
	ElementsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osmplot_elements_fetched_total",
			Help: "Total number of raw elements returned by the feature service",
		},
	)

	RowsNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osmplot_rows_normalized_total",
			Help: "Total number of elements that produced a table row",
		},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmplot_rows_dropped_total",
			Help: "Total number of elements dropped during normalization",
		},
		[]string{"reason"},
	)

	EmptyResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osmplot_empty_results_total",
			Help: "Total number of queries that matched no elements",
		},
	)

	DegradedRenders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osmplot_degraded_renders_total",
			Help: "Total number of renders that fell back to neutral styling",
		},
	)

	LegendGroups = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "osmplot_legend_groups",
			Help:    "Number of distinct legend groups per prepared render",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmplot_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// Helper functions for common metric updates
func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	MCPRequestsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	ExternalServiceRequestsTotal.WithLabelValues(service, operation, statusLabel(success)).Inc()
	ExternalServiceRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordNormalization records the outcome of one normalization pass
func RecordNormalization(fetched, rows, dropped, conflicting int) {
	if fetched == 0 {
		EmptyResults.Inc()
	}
	ElementsFetched.Add(float64(fetched))
	RowsNormalized.Add(float64(rows))
	if dropped > 0 {
		RowsDropped.WithLabelValues("no_coordinates").Add(float64(dropped))
	}
	if conflicting > 0 {
		RowsDropped.WithLabelValues("conflicting_coordinates").Add(float64(conflicting))
	}
}

// RecordRender records the outcome of one render preparation
func RecordRender(groups int, degraded bool) {
	LegendGroups.Observe(float64(groups))
	if degraded {
		DegradedRenders.Inc()
	}
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
