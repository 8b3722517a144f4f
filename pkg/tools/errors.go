package tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmplot/pkg/core"
)

// ErrorResponse returns a plain error result
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ErrorResult converts err into an MCP error result. Pipeline errors keep
// their code, guidance and query; anything else is reported as internal.
func ErrorResult(toolName string, err error) *mcp.CallToolResult {
	var e *core.Error
	if errors.As(err, &e) {
		if e.Code == string(core.ErrInvalidInput) || e.Code == string(core.ErrMissingParameter) {
			if len(e.Suggestions) == 0 {
				e = e.WithSuggestions("example: " + UsageExample(toolName))
			}
		}
		return e.ToMCPResult()
	}
	return core.NewError(core.ErrInternalError, fmt.Sprintf("%s failed", toolName)).
		WithCause(err).
		ToMCPResult()
}

// UsageExample returns an example argument object for a tool
func UsageExample(toolName string) string {
	examples := map[string]string{
		ToolMapFeatures: `{
  "key": "amenity",
  "tag": "post_box",
  "area": "(55.85,-3.35,56.0,-3.05)",
  "legend": "operator"
}`,
		ToolMapFeatureByID: `{
  "type": "way",
  "id": 4309426,
  "recursion": ">"
}`,
		ToolNearestFeature: `{
  "key": "amenity",
  "tag": "cafe",
  "center": "55.953, -3.189",
  "radius": 500,
  "point": "55.9521, -3.1910"
}`,
		ToolTagVocabulary: `{
  "key": "generator__method"
}`,
	}
	if example, ok := examples[toolName]; ok {
		return example
	}
	return "{}"
}
