package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/mapping"
	"github.com/NERVsystems/osmplot/pkg/monitoring"
	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/render"
	"github.com/NERVsystems/osmplot/pkg/tracing"
)

// Tool names
const (
	ToolMapFeatures     = "map_features"
	ToolMapFeatureByID  = "map_feature_by_id"
	ToolNearestFeature  = "nearest_feature"
	ToolTagVocabulary   = "tag_vocabulary"
	ToolListTileSources = "list_tile_sources"
)

// MapService runs the feature pipeline
type MapService interface {
	Map(ctx context.Context, req mapping.Request) (*mapping.Map, error)
	MapByID(ctx context.Context, req mapping.ByIDRequest) (*mapping.Map, error)
}

// VocabularySource supplies the tag vocabulary
type VocabularySource interface {
	Vocabulary(ctx context.Context) (osm.Vocabulary, error)
}

// Handler is an MCP tool handler
type Handler = func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger *slog.Logger
	maps   MapService
	vocab  VocabularySource
	config render.Config
}

// NewRegistry creates a new tool registry. cfg supplies the default tile
// source and the sources list_tile_sources reports.
func NewRegistry(logger *slog.Logger, maps MapService, vocab VocabularySource, cfg render.Config) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		maps:   maps,
		vocab:  vocab,
		config: cfg,
	}
}

// ToolDefinition pairs an MCP tool with its handler
type ToolDefinition struct {
	Name    string
	Tool    mcp.Tool
	Handler Handler
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:    ToolMapFeatures,
			Tool:    MapFeaturesTool(),
			Handler: WithParsedInput(ToolMapFeatures, r.handleMapFeatures),
		},
		{
			Name:    ToolMapFeatureByID,
			Tool:    MapFeatureByIDTool(),
			Handler: WithParsedInput(ToolMapFeatureByID, r.handleMapFeatureByID),
		},
		{
			Name:    ToolNearestFeature,
			Tool:    NearestFeatureTool(),
			Handler: WithParsedInput(ToolNearestFeature, r.handleNearestFeature),
		},
		{
			Name:    ToolTagVocabulary,
			Tool:    TagVocabularyTool(),
			Handler: WithParsedInput(ToolTagVocabulary, r.handleTagVocabulary),
		},
		{
			Name:    ToolListTileSources,
			Tool:    ListTileSourcesTool(),
			Handler: WithParsedInput(ToolListTileSources, r.handleListTileSources),
		},
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.instrument(def.Name, def.Handler))
	}
}

// Call runs the named tool with args outside an MCP session. Tool failures
// are reported in the result; the error is set only for unknown tools.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	for _, def := range r.GetToolDefinitions() {
		if def.Name != name {
			continue
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		return r.instrument(name, def.Handler)(ctx, req)
	}
	return nil, core.NewError(core.ErrInvalidInput, fmt.Sprintf("unknown tool %q", name)).
		WithSuggestions(r.GetToolNames()...)
}

// instrument wraps a tool handler with a span and request metrics
func (r *Registry) instrument(toolName string, handler Handler) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", toolName),
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, duration.Milliseconds(), resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
			"result_size", resultSize,
		)
		return result, err
	}
}
