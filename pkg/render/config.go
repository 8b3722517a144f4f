// Package render turns a normalized table into projected, coloured rows
// grouped by legend category, ready for an external map renderer.
package render

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmplot/pkg/core"
)

// TileSource is a slippy-map tile template with {Z}, {X} and {Y}
// placeholders
type TileSource struct {
	Name        string `json:"name" yaml:"name"`
	Template    string `json:"url" yaml:"url"`
	Attribution string `json:"attribution,omitempty" yaml:"attribution,omitempty"`
}

// URL fills in the template for one tile
func (s TileSource) URL(z, x, y uint32) string {
	return strings.NewReplacer(
		"{Z}", strconv.FormatUint(uint64(z), 10),
		"{X}", strconv.FormatUint(uint64(x), 10),
		"{Y}", strconv.FormatUint(uint64(y), 10),
	).Replace(s.Template)
}

// DefaultTileSources returns the built-in tile sources keyed by name
func DefaultTileSources() map[string]TileSource {
	return map[string]TileSource{
		"OpenMap": {
			Name:        "OpenMap",
			Template:    "https://c.tile.openstreetmap.org/{Z}/{X}/{Y}.png",
			Attribution: "© OpenStreetMap contributors",
		},
		"ESRI": {
			Name:        "ESRI",
			Template:    "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{Z}/{Y}/{X}.jpg",
			Attribution: "Tiles © Esri",
		},
		"OpenTopoMap": {
			Name:        "OpenTopoMap",
			Template:    "https://tile.opentopomap.org/{Z}/{X}/{Y}.png",
			Attribution: "© OpenStreetMap contributors, SRTM | © OpenTopoMap (CC-BY-SA)",
		},
	}
}

// Tooltip is one hover line: a label and the row field it shows
type Tooltip struct {
	Label string `json:"label" yaml:"label"`
	Field string `json:"field" yaml:"field"`
}

// DefaultTooltips shows the element, its query and its tags
var DefaultTooltips = []Tooltip{
	{Label: "id", Field: FieldID},
	{Label: "key", Field: FieldQueryKey},
	{Label: "tag", Field: FieldQueryTag},
	{Label: "tags", Field: FieldTags},
	{Label: "(lat,lon)", Field: FieldCoordinates},
}

// Config is the bundle handed to the renderer alongside the rows
type Config struct {
	Width      int       `json:"width" yaml:"width"`
	Height     int       `json:"height" yaml:"height"`
	MarkerSize float64   `json:"marker_size" yaml:"marker_size"`
	TileSource string    `json:"tile_source" yaml:"tile_source"`
	Tooltips   []Tooltip `json:"tooltips" yaml:"tooltips"`
	Marker     string    `json:"marker" yaml:"marker"`
	LineWidth  float64   `json:"line_width" yaml:"line_width"`
	Alpha      float64   `json:"alpha" yaml:"alpha"`

	// TileSources overrides the built-in sources when non-empty.
	TileSources map[string]TileSource `json:"tile_sources,omitempty" yaml:"tile_sources,omitempty"`
}

// DefaultConfig returns an 800x800 satellite map with circle markers
func DefaultConfig() Config {
	return Config{
		Width:      800,
		Height:     800,
		MarkerSize: 14,
		TileSource: "ESRI",
		Tooltips:   slices.Clone(DefaultTooltips),
		Marker:     "circle_y",
		LineWidth:  1,
		Alpha:      0.8,
	}
}

func (c Config) sources() map[string]TileSource {
	if len(c.TileSources) > 0 {
		return c.TileSources
	}
	return DefaultTileSources()
}

// SourceNames lists the available tile source names in sorted order
func (c Config) SourceNames() []string {
	return slices.Sorted(maps.Keys(c.sources()))
}

// Tile resolves the configured tile source
func (c Config) Tile() (TileSource, error) {
	src, ok := c.sources()[c.TileSource]
	if !ok {
		return TileSource{}, core.NewValidationError(core.ErrInvalidInput,
			fmt.Sprintf("unknown tile source %q", c.TileSource)).
			WithSuggestions(c.SourceNames()...)
	}
	return src, nil
}

// Validate checks sizes, opacity and the tile source
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return core.NewValidationError(core.ErrInvalidInput, "width and height must be positive")
	}
	if c.MarkerSize <= 0 {
		return core.NewValidationError(core.ErrInvalidInput, "marker size must be positive")
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return core.NewValidationError(core.ErrInvalidInput, "alpha must be within 0..1")
	}
	if c.LineWidth < 0 {
		return core.NewValidationError(core.ErrInvalidInput, "line width must not be negative")
	}
	_, err := c.Tile()
	return err
}
