package render

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// FeatureCollection exports the rows as GeoJSON points in geographic
// coordinates with their styling as properties.
func (r *Result) FeatureCollection() *geojson.FeatureCollection {
	return FeatureCollection(r.Rows)
}

// FeatureCollection exports a subset of styled rows, such as the rows
// inside a viewport
func FeatureCollection(rows []StyledRow) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewFeature(row.Point())
		f.ID = fmt.Sprintf("%s/%d", row.Type, row.ID)

		f.Properties["id"] = row.ID
		f.Properties["osm_type"] = row.Type
		f.Properties["query_key"] = row.QueryKey
		f.Properties["query_tag"] = row.QueryTag
		f.Properties["legend_group"] = row.LegendGroup
		f.Properties["fill_color"] = row.Fill.Hex()
		f.Properties["line_color"] = row.Outline.Hex()
		f.Properties["x"] = row.X
		f.Properties["y"] = row.Y
		f.Properties["source"] = string(row.Source)
		if len(row.Tags) > 0 {
			tags := make(map[string]any, len(row.Tags))
			for k, v := range row.Tags {
				tags[k] = v
			}
			f.Properties["tags"] = tags
		}
		fc.Append(f)
	}
	if len(rows) > 0 {
		fc.BBox = geojson.NewBBox(boundOf(rows))
	}
	return fc
}
