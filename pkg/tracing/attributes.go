package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for pipeline and tool spans
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// External service attributes
	AttrServiceName      = "osmplot.service.name"
	AttrServiceOperation = "osmplot.service.operation"
	AttrServiceURL       = "osmplot.service.url"
	AttrServiceStatus    = "osmplot.service.status"

	// Query attributes
	AttrQueryKey = "osmplot.query.key"
	AttrQueryTag = "osmplot.query.tag"

	// Pipeline attributes
	AttrPipelineStage   = "osmplot.pipeline.stage"
	AttrElementCount    = "osmplot.elements.count"
	AttrRowCount        = "osmplot.rows.count"
	AttrDroppedCount    = "osmplot.rows.dropped"
	AttrLegendGroups    = "osmplot.legend.groups"
	AttrDegradedStyling = "osmplot.style.degraded"

	// Rate limiting attributes
	AttrRateLimitService = "osmplot.ratelimit.service"
	AttrRateLimitWaitMs  = "osmplot.ratelimit.wait_ms"

	// HTTP transport attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPSessionID  = "http.session_id"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusRateLimited = "rate_limited"
)

// Service names
const (
	ServiceOverpass = "overpass"
	ServiceTaginfo  = "taginfo"
)

// Pipeline stages
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StagePrepare   = "prepare"
)

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// ServiceAttributes returns attributes for external service calls
func ServiceAttributes(service, operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, url),
		attribute.Int(AttrServiceStatus, status),
	}
}

// QueryAttributes returns attributes describing a key/tag query
func QueryAttributes(key, tag string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrQueryKey, key),
		attribute.String(AttrQueryTag, tag),
	}
}

// StageAttributes returns attributes for a pipeline stage
func StageAttributes(stage string, in, out, dropped int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrPipelineStage, stage),
		attribute.Int(AttrElementCount, in),
		attribute.Int(AttrRowCount, out),
		attribute.Int(AttrDroppedCount, dropped),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
