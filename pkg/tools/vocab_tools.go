package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/render"
)

// TagVocabularyInput selects the keys list or one key's values
type TagVocabularyInput struct {
	Key   string `json:"key,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// TagVocabularyOutput lists keys, or values when a key was given
type TagVocabularyOutput struct {
	Key    string         `json:"key,omitempty"`
	Keys   []string       `json:"keys,omitempty"`
	Values []osm.TagValue `json:"values,omitempty"`
	Total  int            `json:"total"`
}

// TileOutput describes one tile source
type TileOutput struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
}

// TileSourcesOutput is the result of list_tile_sources
type TileSourcesOutput struct {
	Default string       `json:"default"`
	Sources []TileOutput `json:"sources"`
}

func tileOutput(s render.TileSource) TileOutput {
	return TileOutput{Name: s.Name, URL: s.Template, Attribution: s.Attribution}
}

// TagVocabularyTool returns the tag_vocabulary tool definition
func TagVocabularyTool() mcp.Tool {
	return mcp.NewTool(ToolTagVocabulary,
		mcp.WithDescription("List the tag keys used by OpenStreetMap projects, or the values seen for one key. Keys and values have ':' replaced by '__'."),
		mcp.WithString("key", mcp.Description("Key to list values for, e.g. generator__method. Omit to list keys")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries to return; 0 returns all")),
	)
}

// ListTileSourcesTool returns the list_tile_sources tool definition
func ListTileSourcesTool() mcp.Tool {
	return mcp.NewTool(ToolListTileSources,
		mcp.WithDescription("List the background tile sources available to the map tools"),
	)
}

func (r *Registry) handleTagVocabulary(ctx context.Context, in TagVocabularyInput, logger *slog.Logger) (any, error) {
	vocab, err := r.vocab.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}

	if in.Key == "" {
		keys := vocab.Keys()
		out := TagVocabularyOutput{Total: len(keys)}
		out.Keys = limit(keys, in.Limit)
		return out, nil
	}

	key := osm.SanitizeKey(in.Key)
	names := vocab.Values(key)
	out := TagVocabularyOutput{Key: key, Total: len(names)}
	for _, name := range limit(names, in.Limit) {
		out.Values = append(out.Values, vocab[key][name])
	}
	logger.Debug("vocabulary lookup", "key", key, "values", len(names))
	return out, nil
}

func (r *Registry) handleListTileSources(_ context.Context, _ struct{}, _ *slog.Logger) (any, error) {
	out := TileSourcesOutput{Default: r.config.TileSource}
	for _, name := range r.config.SourceNames() {
		src, _ := r.sourceByName(name)
		out.Sources = append(out.Sources, tileOutput(src))
	}
	return out, nil
}

func (r *Registry) sourceByName(name string) (render.TileSource, error) {
	cfg := r.config
	cfg.TileSource = name
	return cfg.Tile()
}

func limit(s []string, n int) []string {
	if n > 0 && n < len(s) {
		return s[:n]
	}
	return s
}
