// Package tools exposes the map feature pipeline as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmplot/pkg/core"
)

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, core.NewError(core.ErrInvalidInput, "invalid input format").WithCause(err)
	}
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, core.NewError(core.ErrInvalidInput, fmt.Sprintf("failed to parse input: %v", err)).
			WithGuidance("Check the argument names and types")
	}
	return input, nil
}

// WithParsedInput is a higher-order function that handles request parsing,
// error conversion and result marshalling
func WithParsedInput[T any](
	toolName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (any, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", toolName)

		input, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return ErrorResult(toolName, err), nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			logger.Error("handler error", "error", err)
			return ErrorResult(toolName, err), nil
		}

		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}
		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}
