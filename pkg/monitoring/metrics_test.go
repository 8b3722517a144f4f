package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	metrics := []prometheus.Collector{
		MCPRequestsTotal,
		MCPRequestDuration,
		ExternalServiceRequestsTotal,
		ExternalServiceRequestDuration,
		RateLimitWaitTime,
		ElementsFetched,
		RowsNormalized,
		RowsDropped,
		EmptyResults,
		DegradedRenders,
		LegendGroups,
		ErrorsTotal,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("Metric is nil")
		}
	}
}

func TestRecordMCPRequest(t *testing.T) {
	MCPRequestsTotal.Reset()

	RecordMCPRequest("map_features", 100*time.Millisecond, true)
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("map_features", "success")); got != 1 {
		t.Errorf("Expected 1 successful request, got %v", got)
	}

	RecordMCPRequest("map_features", 200*time.Millisecond, false)
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("map_features", "error")); got != 1 {
		t.Errorf("Expected 1 failed request, got %v", got)
	}
}

func TestRecordExternalServiceRequest(t *testing.T) {
	ExternalServiceRequestsTotal.Reset()

	RecordExternalServiceRequest("overpass", "fetch", 500*time.Millisecond, true)
	if got := testutil.ToFloat64(ExternalServiceRequestsTotal.WithLabelValues("overpass", "fetch", "success")); got != 1 {
		t.Errorf("Expected 1 successful external request, got %v", got)
	}

	RecordExternalServiceRequest("overpass", "fetch", 300*time.Millisecond, false)
	if got := testutil.ToFloat64(ExternalServiceRequestsTotal.WithLabelValues("overpass", "fetch", "error")); got != 1 {
		t.Errorf("Expected 1 failed external request, got %v", got)
	}
}

func TestRecordNormalization(t *testing.T) {
	RowsDropped.Reset()
	before := testutil.ToFloat64(RowsNormalized)

	RecordNormalization(5, 3, 1, 1)

	if got := testutil.ToFloat64(RowsNormalized) - before; got != 3 {
		t.Errorf("Expected 3 normalized rows, got %v", got)
	}
	if got := testutil.ToFloat64(RowsDropped.WithLabelValues("no_coordinates")); got != 1 {
		t.Errorf("Expected 1 dropped row, got %v", got)
	}
	if got := testutil.ToFloat64(RowsDropped.WithLabelValues("conflicting_coordinates")); got != 1 {
		t.Errorf("Expected 1 conflicting row, got %v", got)
	}
}

func TestRecordRender(t *testing.T) {
	before := testutil.ToFloat64(DegradedRenders)

	RecordRender(3, false)
	RecordRender(1, true)

	if got := testutil.ToFloat64(DegradedRenders) - before; got != 1 {
		t.Errorf("Expected 1 degraded render, got %v", got)
	}
}

func TestErrorMetrics(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("render", "PROJECTION_ERROR")
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("render", "PROJECTION_ERROR")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func BenchmarkRecordMCPRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordMCPRequest("benchmark_tool", 100*time.Millisecond, true)
	}
}
