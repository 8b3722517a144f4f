package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/osmplot/pkg/coords"
	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/mapping"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
	"github.com/NERVsystems/osmplot/pkg/render"
)

const (
	formatSummary = "summary"
	formatGeoJSON = "geojson"
)

// MapFeaturesInput selects features by key and tag inside an area
type MapFeaturesInput struct {
	Key    string  `json:"key"`
	Tag    string  `json:"tag,omitempty"`
	Area   string  `json:"area,omitempty"`
	Center string  `json:"center,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	// BBox searches the square around center instead of a true radius.
	BBox      bool   `json:"bbox,omitempty"`
	Output    string `json:"output,omitempty"`
	Element   string `json:"element,omitempty"`
	Recursion string `json:"recursion,omitempty"`
	Raw       string `json:"raw,omitempty"`
	StyleInput
}

// StyleInput holds the styling arguments shared by the map tools
type StyleInput struct {
	Legend     string `json:"legend,omitempty"`
	FillColumn string `json:"fill_column,omitempty"`
	TileSource string `json:"tile_source,omitempty"`
	Format     string `json:"format,omitempty"`
	// Viewport limits the returned features to (south,west,north,east).
	Viewport string `json:"viewport,omitempty"`
	Tiles    bool   `json:"tiles,omitempty"`
}

func (in StyleInput) style(base render.Config) (mapping.Style, error) {
	s := mapping.Style{Legend: in.Legend}
	if in.FillColumn != "" {
		s.Fill = render.FillFromColumn(in.FillColumn)
	}
	if in.TileSource != "" {
		cfg := base
		cfg.TileSource = in.TileSource
		if _, err := cfg.Tile(); err != nil {
			return s, err
		}
		s.Config = &cfg
	}
	switch in.Format {
	case "", formatSummary, formatGeoJSON:
	default:
		return s, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("unknown format %q", in.Format)).
			WithSuggestions(formatSummary, formatGeoJSON)
	}
	return s, nil
}

// viewport parses the optional viewport into a geographic bound
func (in StyleInput) viewport() (*orb.Bound, error) {
	if in.Viewport == "" {
		return nil, nil
	}
	b, err := coords.ParseArea(in.Viewport)
	if err != nil {
		return nil, err
	}
	return &orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}, nil
}

func (in MapFeaturesInput) request(base render.Config) (mapping.Request, error) {
	if in.Key == "" {
		return mapping.Request{}, core.NewValidationError(core.ErrMissingParameter, "key is required")
	}

	q := queries.Query{
		Key:       in.Key,
		Tag:       in.Tag,
		Output:    queries.Output(in.Output),
		Element:   in.Element,
		Recursion: in.Recursion,
	}
	switch {
	case in.Area != "":
		area, err := coords.ParseArea(in.Area)
		if err != nil {
			return mapping.Request{}, err
		}
		q.Area = &area
	case in.Center != "":
		p, _, err := coords.ParsePoint(in.Center)
		if err != nil {
			return mapping.Request{}, err
		}
		around := queries.Around{Radius: in.Radius, Lat: p.Lat(), Lon: p.Lon()}
		if err := around.Validate(); err != nil {
			return mapping.Request{}, err
		}
		if in.BBox {
			area := coords.AreaAround(p, in.Radius)
			q.Area = &area
		} else {
			q.Around = &around
		}
	case in.Raw == "":
		return mapping.Request{}, core.NewValidationError(core.ErrMissingParameter, "either area or center is required")
	}
	if in.Raw == "" {
		if err := q.Validate(); err != nil {
			return mapping.Request{}, err
		}
	}

	style, err := in.style(base)
	if err != nil {
		return mapping.Request{}, err
	}
	return mapping.Request{Query: q, Raw: in.Raw, Style: style}, nil
}

// MapFeatureByIDInput selects one element
type MapFeatureByIDInput struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	Output    string `json:"output,omitempty"`
	Recursion string `json:"recursion,omitempty"`
	StyleInput
}

// NearestFeatureInput is a feature search plus the point to hit-test
type NearestFeatureInput struct {
	MapFeaturesInput
	Point string `json:"point"`
}

// GroupSummary is one legend entry
type GroupSummary struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// MapOutput is the result of the map tools
type MapOutput struct {
	Query        string         `json:"query"`
	Rows         int            `json:"rows"`
	Dropped      int            `json:"dropped,omitempty"`
	Conflicting  int            `json:"conflicting,omitempty"`
	Untagged     int            `json:"untagged,omitempty"`
	Columns      []string       `json:"columns"`
	LegendColumn string         `json:"legend_column"`
	Palette      string         `json:"palette,omitempty"`
	Degraded     bool           `json:"degraded,omitempty"`
	Groups       []GroupSummary `json:"groups"`
	Tile         TileOutput     `json:"tile"`
	Zoom         int            `json:"zoom"`
	// Bounds is [south, west, north, east], omitted for empty results.
	Bounds   []float64                  `json:"bounds,omitempty"`
	TileURLs []string                   `json:"tile_urls,omitempty"`
	Viewport *ViewportOutput            `json:"viewport,omitempty"`
	Features *geojson.FeatureCollection `json:"features,omitempty"`
}

// ViewportOutput lists the features inside the requested viewport
type ViewportOutput struct {
	Count    int              `json:"count"`
	Features []*FeatureOutput `json:"features"`
}

// FeatureOutput describes one styled row
type FeatureOutput struct {
	ID   int64   `json:"id"`
	Type string  `json:"osm_type"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	// MGRS is the 1m grid reference, omitted outside the MGRS domain.
	MGRS        string               `json:"mgrs,omitempty"`
	LegendGroup string               `json:"legend_group"`
	Color       string               `json:"color"`
	Tooltip     []render.TooltipLine `json:"tooltip"`
}

// NearestOutput is the result of nearest_feature. Distance is in Web
// Mercator units.
type NearestOutput struct {
	Found    bool           `json:"found"`
	Distance float64        `json:"distance,omitempty"`
	Feature  *FeatureOutput `json:"feature,omitempty"`
	Rows     int            `json:"rows"`
}

// summarize builds the tool output. With a viewport the feature list and
// GeoJSON hold only the rows inside it; the legend still covers every row.
func summarize(m *mapping.Map, in StyleInput, view *orb.Bound) MapOutput {
	res := m.Result
	out := MapOutput{
		Query:        m.Query,
		Rows:         len(res.Rows),
		Dropped:      m.Table.Dropped,
		Conflicting:  m.Table.Conflicting,
		Untagged:     m.Table.Untagged,
		Columns:      m.Table.Columns,
		LegendColumn: res.LegendColumn,
		Palette:      string(res.Palette),
		Degraded:     res.Degraded,
		Groups:       make([]GroupSummary, 0, len(res.Groups)),
		Tile:         tileOutput(res.Tile),
		Zoom:         int(res.FitZoom(res.Config.Width, res.Config.Height)),
	}
	for _, g := range res.Groups {
		out.Groups = append(out.Groups, GroupSummary{
			Label: g.Label,
			Color: g.Rows[0].Fill.Hex(),
			Count: len(g.Rows),
		})
	}
	if len(res.Rows) > 0 {
		b := res.Bounds()
		out.Bounds = []float64{b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon()}
	}
	if in.Tiles {
		out.TileURLs = res.TileURLs()
	}

	rows := res.Rows
	if view != nil {
		rows = render.NewIndex(res).Within(render.WebMercator{}.ProjectBound(*view))
		out.Viewport = &ViewportOutput{Count: len(rows), Features: make([]*FeatureOutput, len(rows))}
		for i, row := range rows {
			out.Viewport.Features[i] = featureOutput(res, row)
		}
	}
	if in.Format == formatGeoJSON {
		out.Features = render.FeatureCollection(rows)
	}
	return out
}

func featureOutput(res *render.Result, row render.StyledRow) *FeatureOutput {
	ref, _ := coords.ToMGRS(row.Lat, row.Lon, 5)
	return &FeatureOutput{
		ID:          row.ID,
		Type:        row.Type,
		Lat:         row.Lat,
		Lon:         row.Lon,
		MGRS:        ref,
		LegendGroup: row.LegendGroup,
		Color:       row.Fill.Hex(),
		Tooltip:     res.Tooltip(row),
	}
}

// MapFeaturesTool returns the map_features tool definition
func MapFeaturesTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Fetch OpenStreetMap features matching key=tag in an area, colour them by a legend column and return the legend, tile source and initial zoom. Use format=geojson to include styled point features."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Tag key, e.g. amenity or generator:method")),
		mcp.WithString("tag", mcp.Description("Tag value, e.g. post_box. Omit to match any value")),
		mcp.WithString("area", mcp.Description("Bounding box as (south,west,north,east)")),
		mcp.WithString("center", mcp.Description("Centre point for a radius search: decimal, DMS or MGRS")),
		mcp.WithNumber("radius", mcp.Description("Radius in metres around center")),
		mcp.WithBoolean("bbox", mcp.Description("Search the square bounding box around center instead of a true radius")),
		mcp.WithString("output", mcp.Description("Overpass output mode"), mcp.Enum(string(queries.OutCenter), string(queries.OutGeom), string(queries.OutBody))),
		mcp.WithString("element", mcp.Description("Restrict to one element type"), mcp.Enum("node", "way", "rel")),
		mcp.WithString("recursion", mcp.Description("Recurse step appended to the query, e.g. > or <")),
		mcp.WithString("raw", mcp.Description("Complete Overpass QL to submit instead of the generated query; key and tag still label rows")),
	}
	return mcp.NewTool(ToolMapFeatures, append(opts, styleOptions()...)...)
}

// MapFeatureByIDTool returns the map_feature_by_id tool definition
func MapFeatureByIDTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Fetch one OpenStreetMap element by type and id, optionally with its members (recursion >), and prepare it for display. Untagged member nodes are dropped."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Element type"), mcp.Enum("node", "way", "rel")),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Element id")),
		mcp.WithString("output", mcp.Description("Overpass output mode"), mcp.Enum(string(queries.OutCenter), string(queries.OutGeom), string(queries.OutBody))),
		mcp.WithString("recursion", mcp.Description("Recurse step, e.g. >")),
	}
	return mcp.NewTool(ToolMapFeatureByID, append(opts, styleOptions()...)...)
}

// NearestFeatureTool returns the nearest_feature tool definition
func NearestFeatureTool() mcp.Tool {
	base := MapFeaturesTool()
	tool := mcp.NewTool(ToolNearestFeature,
		mcp.WithDescription("Run a map_features search and return the feature closest to a point, with its tooltip. Accepts every map_features argument plus point."),
		mcp.WithString("point", mcp.Required(), mcp.Description("Point to hit-test: decimal, DMS or MGRS")),
	)
	for name, schema := range base.InputSchema.Properties {
		tool.InputSchema.Properties[name] = schema
	}
	tool.InputSchema.Required = append(tool.InputSchema.Required, base.InputSchema.Required...)
	return tool
}

func styleOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("legend", mcp.Description("Column that defines legend groups; defaults to query_tag (osm_type for by-id lookups)")),
		mcp.WithString("fill_column", mcp.Description("Column holding each feature's colour; omit to colour by legend group")),
		mcp.WithString("tile_source", mcp.Description("Background tile source, see list_tile_sources")),
		mcp.WithString("format", mcp.Description("Result detail"), mcp.Enum(formatSummary, formatGeoJSON)),
		mcp.WithString("viewport", mcp.Description("Visible area as (south,west,north,east); lists the features inside it and limits GeoJSON to them")),
		mcp.WithBoolean("tiles", mcp.Description("Include the background tile URLs covering the result at the fitted zoom")),
	}
}

func (r *Registry) handleMapFeatures(ctx context.Context, in MapFeaturesInput, logger *slog.Logger) (any, error) {
	req, err := in.request(r.config)
	if err != nil {
		return nil, err
	}
	view, err := in.viewport()
	if err != nil {
		return nil, err
	}
	m, err := r.maps.Map(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("mapped features", "key", in.Key, "tag", in.Tag, "rows", m.Table.Len(), "groups", len(m.Result.Groups))
	return summarize(m, in.StyleInput, view), nil
}

func (r *Registry) handleMapFeatureByID(ctx context.Context, in MapFeatureByIDInput, logger *slog.Logger) (any, error) {
	q := queries.IDQuery{
		Type:      in.Type,
		ID:        in.ID,
		Output:    queries.Output(in.Output),
		Recursion: in.Recursion,
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	style, err := in.style(r.config)
	if err != nil {
		return nil, err
	}
	view, err := in.viewport()
	if err != nil {
		return nil, err
	}
	m, err := r.maps.MapByID(ctx, mapping.ByIDRequest{Query: q, Style: style})
	if err != nil {
		return nil, err
	}
	logger.Info("mapped element", "type", in.Type, "id", in.ID, "rows", m.Table.Len())
	return summarize(m, in.StyleInput, view), nil
}

func (r *Registry) handleNearestFeature(ctx context.Context, in NearestFeatureInput, logger *slog.Logger) (any, error) {
	p, _, err := coords.ParsePoint(in.Point)
	if err != nil {
		return nil, err
	}
	x, y, ok := render.WebMercator{}.Project(p.Lat(), p.Lon())
	if !ok {
		return nil, core.ProjectionFailure(0, p.Lat(), p.Lon())
	}

	req, err := in.request(r.config)
	if err != nil {
		return nil, err
	}
	m, err := r.maps.Map(ctx, req)
	if err != nil {
		return nil, err
	}

	idx := render.NewIndex(m.Result)
	row, dist, found := idx.Nearest(x, y)
	out := NearestOutput{Found: found, Rows: idx.Len()}
	if found {
		out.Distance = dist
		out.Feature = featureOutput(m.Result, row)
	}
	logger.Debug("nearest feature", "found", found, "distance", dist)
	return out, nil
}
