// Package normalize flattens Overpass elements into a table with one
// resolved coordinate per row and tag keys promoted to columns.
package normalize

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmplot/pkg/osm"
)

// Source records which element field a row's coordinate came from
type Source string

const (
	FromLocation Source = "location"
	FromCentroid Source = "centroid"
	FromBoundary Source = "boundary"
)

// Fixed columns present on every row. Tag columns follow them. The
// element kind is osm_type so that the common "type" tag on relations
// stays readable as a tag column.
const (
	ColID       = "id"
	ColType     = "osm_type"
	ColLat      = "lat"
	ColLon      = "lon"
	ColQueryKey = "query_key"
	ColQueryTag = "query_tag"
)

// CoreColumns lists the fixed columns in display order
var CoreColumns = []string{ColID, ColType, ColLat, ColLon, ColQueryKey, ColQueryTag}

// Row is one element with its resolved coordinate
type Row struct {
	ID       int64             `json:"id"`
	Type     string            `json:"osm_type"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Source   Source            `json:"source"`
	Tags     map[string]string `json:"tags,omitempty"`
	QueryKey string            `json:"query_key"`
	QueryTag string            `json:"query_tag"`
}

// Value returns the row's value for a fixed or tag column. ok is false
// when the row has no value for a tag column.
func (r Row) Value(col string) (string, bool) {
	switch col {
	case ColID:
		return strconv.FormatInt(r.ID, 10), true
	case ColType:
		return r.Type, true
	case ColLat:
		return strconv.FormatFloat(r.Lat, 'f', -1, 64), true
	case ColLon:
		return strconv.FormatFloat(r.Lon, 'f', -1, 64), true
	case ColQueryKey:
		return r.QueryKey, true
	case ColQueryTag:
		return r.QueryTag, true
	}
	v, ok := r.Tags[col]
	return v, ok
}

// Point returns the coordinate as an orb point (lon, lat)
func (r Row) Point() orb.Point {
	return orb.Point{r.Lon, r.Lat}
}

// TagString renders the tags as sorted k=v pairs
func (r Row) TagString() string {
	parts := make([]string, 0, len(r.Tags))
	for _, k := range slices.Sorted(maps.Keys(r.Tags)) {
		parts = append(parts, k+"="+r.Tags[k])
	}
	return strings.Join(parts, ", ")
}

// Table is the normalized result of one query
type Table struct {
	Rows []Row `json:"rows"`
	// Columns is the sorted union of tag keys across all rows.
	Columns []string `json:"columns"`
	Key     string   `json:"query_key"`
	Tag     string   `json:"query_tag"`

	// Dropped counts elements without any resolvable coordinate.
	Dropped int `json:"dropped"`
	// Conflicting counts elements carrying both a location and a centroid.
	Conflicting int `json:"conflicting"`
	// Untagged counts by-id stubs removed before coordinate resolution.
	Untagged int `json:"untagged"`
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether col is a fixed column or a tag column
func (t *Table) HasColumn(col string) bool {
	if slices.Contains(CoreColumns, col) {
		return true
	}
	_, found := slices.BinarySearch(t.Columns, col)
	return found
}

// Normalize converts a key/tag search result into a table. Elements
// without coordinates are dropped and counted. An empty input yields an
// empty table.
func Normalize(elements []osm.Element, key, tag string) *Table {
	logger := slog.Default().With("component", "normalize")

	t := &Table{Rows: make([]Row, 0, len(elements)), Key: key, Tag: tag}
	if len(elements) == 0 {
		logger.Info("no matching elements", "query_key", key, "query_tag", tag)
		t.Columns = []string{}
		return t
	}

	columns := make(map[string]struct{})
	for _, el := range elements {
		lat, lon, src, err := resolve(el)
		if err != nil {
			t.Conflicting++
			logger.Warn("rejected element", "type", el.Type, "id", el.ID, "error", err)
			continue
		}
		if src == "" {
			t.Dropped++
			continue
		}

		row := Row{
			ID:       el.ID,
			Type:     el.Type,
			Lat:      lat,
			Lon:      lon,
			Source:   src,
			QueryKey: key,
			QueryTag: tag,
		}
		if len(el.Tags) > 0 {
			row.Tags = maps.Clone(el.Tags)
			for k := range el.Tags {
				columns[k] = struct{}{}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	t.Columns = slices.Sorted(maps.Keys(columns))

	if t.Dropped > 0 {
		logger.Warn("dropped elements without coordinates",
			"dropped", t.Dropped,
			"query_key", key,
			"query_tag", tag,
		)
	}
	return t
}

// NormalizeByID converts the result of a by-id fetch. Untagged elements
// are reference stubs pulled in by recursion and are removed first.
func NormalizeByID(elements []osm.Element) *Table {
	tagged := make([]osm.Element, 0, len(elements))
	for _, el := range elements {
		if len(el.Tags) > 0 {
			tagged = append(tagged, el)
		}
	}

	t := Normalize(tagged, "", "")
	t.Untagged = len(elements) - len(tagged)
	return t
}

// resolve picks the coordinate by precedence: direct location, then
// centroid, then the mean of the boundary vertices. An empty source means
// the element has none of them.
func resolve(el osm.Element) (lat, lon float64, src Source, err error) {
	loc, hasLoc := el.Location()
	if hasLoc && el.Center != nil {
		return 0, 0, "", fmt.Errorf("element has both a location and a centroid")
	}
	if hasLoc {
		return loc.Lat, loc.Lon, FromLocation, nil
	}
	if el.Center != nil {
		return el.Center.Lat, el.Center.Lon, FromCentroid, nil
	}
	if b := el.Boundary(); len(b) > 0 {
		p := mean(b)
		return p.Lat(), p.Lon(), FromBoundary, nil
	}
	return 0, 0, "", nil
}

// mean averages latitude and longitude independently
func mean(vertices []osm.LatLon) orb.Point {
	var sumLat, sumLon float64
	for _, v := range vertices {
		sumLat += v.Lat
		sumLon += v.Lon
	}
	n := float64(len(vertices))
	return orb.Point{sumLon / n, sumLat / n}
}
