package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/tools"
)

// mapParams are the /api/map query parameters passed through to
// map_features as strings
var mapParams = []string{
	"key", "tag", "area", "center", "output", "element", "recursion",
	"legend", "fill_column", "tile_source", "viewport",
}

// APIHandler serves the tools as plain JSON endpoints:
//
//	GET  /api/tools         tool names and descriptions
//	POST /api/tools/{name}  run a tool with a JSON argument object
//	GET  /api/map           map_features as GeoJSON from query parameters,
//	                        limited to the viewport parameter when given
type APIHandler struct {
	registry *tools.Registry
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewAPIHandler returns the JSON API for registry
func NewAPIHandler(registry *tools.Registry, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &APIHandler{
		registry: registry,
		logger:   logger.With("component", "api"),
		mux:      http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /api/tools", h.listTools)
	h.mux.HandleFunc("POST /api/tools/{name}", h.callTool)
	h.mux.HandleFunc("GET /api/map", h.mapGeoJSON)
	return h
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *APIHandler) listTools(w http.ResponseWriter, r *http.Request) {
	defs := h.registry.GetToolDefinitions()
	out := make([]toolInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, toolInfo{Name: def.Name, Description: def.Tool.Description})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) callTool(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, core.NewError(core.ErrInvalidInput, "cannot read request body").WithCause(err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			h.writeError(w, core.NewValidationError(core.ErrInvalidInput, "request body must be a JSON object").WithCause(err))
			return
		}
	}
	h.run(w, r, r.PathValue("name"), args, func(text string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, text)
	})
}

func (h *APIHandler) mapGeoJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	args := map[string]any{"format": "geojson"}
	for _, name := range mapParams {
		if v := q.Get(name); v != "" {
			args[name] = v
		}
	}
	if v := q.Get("radius"); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeError(w, core.NewValidationError(core.ErrInvalidInput, "radius must be a number"))
			return
		}
		args["radius"] = radius
	}
	if v := q.Get("bbox"); v != "" {
		bbox, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, core.NewValidationError(core.ErrInvalidInput, "bbox must be true or false"))
			return
		}
		args["bbox"] = bbox
	}

	h.run(w, r, tools.ToolMapFeatures, args, func(text string) {
		var out struct {
			Features json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal([]byte(text), &out); err != nil || len(out.Features) == 0 {
			h.writeError(w, core.NewError(core.ErrInternalError, "map result has no features"))
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(out.Features)
	})
}

// run calls the tool and hands a successful text result to ok; tool errors
// become JSON error responses with a status derived from their code
func (h *APIHandler) run(w http.ResponseWriter, r *http.Request, name string, args map[string]any, ok func(string)) {
	res, err := h.registry.Call(r.Context(), name, args)
	if err != nil {
		var e *core.Error
		if errors.As(err, &e) && e.Code == string(core.ErrInvalidInput) {
			h.writeJSON(w, http.StatusNotFound, e)
			return
		}
		h.writeError(w, err)
		return
	}

	text := resultText(res)
	if res.IsError {
		var e core.Error
		if json.Unmarshal([]byte(text), &e) != nil || e.Code == "" {
			e = core.Error{Code: string(core.ErrInternalError), Message: text}
		}
		h.writeJSON(w, core.HTTPStatus(e.Code), &e)
		return
	}
	ok(text)
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	var e *core.Error
	if !errors.As(err, &e) {
		e = core.NewError(core.ErrInternalError, "internal error").WithCause(err)
	}
	h.writeJSON(w, core.HTTPStatus(e.Code), e)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
