// Package queries builds Overpass QL for key/tag feature searches.
package queries

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/NERVsystems/osmplot/pkg/core"
)

// Output selects how ways and relations are located in the response
type Output string

const (
	// OutCenter summarizes ways and relations by their centre point
	OutCenter Output = "center"
	// OutGeom returns every vertex of ways and relation members
	OutGeom Output = "geom"
	// OutBody returns tags and node references only
	OutBody Output = "body"
)

// DefaultTimeout is the server side query timeout in seconds
const DefaultTimeout = 25

var (
	validOutputs    = []Output{OutCenter, OutGeom, OutBody}
	validElements   = []string{"node", "way", "rel", "relation", "nwr"}
	validRecursions = []string{">", ">>", "<", "<<"}
)

// BBox is a (south, west, north, east) area in degrees
type BBox struct {
	South float64 `json:"south" yaml:"south"`
	West  float64 `json:"west" yaml:"west"`
	North float64 `json:"north" yaml:"north"`
	East  float64 `json:"east" yaml:"east"`
}

// Validate checks ranges and ordering
func (b BBox) Validate() error {
	for _, v := range []float64{b.South, b.West, b.North, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewValidationError(core.ErrInvalidArea, "area coordinates must be finite")
		}
	}
	if b.South < -90 || b.North > 90 {
		return core.NewValidationError(core.ErrInvalidLatitude,
			fmt.Sprintf("latitudes %g..%g must be within -90..90", b.South, b.North))
	}
	if b.West < -180 || b.East > 180 {
		return core.NewValidationError(core.ErrInvalidLongitude,
			fmt.Sprintf("longitudes %g..%g must be within -180..180", b.West, b.East))
	}
	if b.South > b.North {
		return core.NewValidationError(core.ErrInvalidArea, "south must not be greater than north")
	}
	return nil
}

// String renders the area as an Overpass bbox filter, e.g. (55,-2,56,-1)
func (b BBox) String() string {
	return "(" + strings.Join([]string{fnum(b.South), fnum(b.West), fnum(b.North), fnum(b.East)}, ",") + ")"
}

// Around is a radius search in metres around a point
type Around struct {
	Radius float64 `json:"radius"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// Validate checks the radius and centre
func (a Around) Validate() error {
	if a.Radius <= 0 || math.IsNaN(a.Radius) || math.IsInf(a.Radius, 0) {
		return core.NewValidationError(core.ErrInvalidInput, "radius must be a positive number of metres")
	}
	if a.Lat < -90 || a.Lat > 90 || math.IsNaN(a.Lat) {
		return core.NewValidationError(core.ErrInvalidLatitude, fmt.Sprintf("latitude %g must be within -90..90", a.Lat))
	}
	if a.Lon < -180 || a.Lon > 180 || math.IsNaN(a.Lon) {
		return core.NewValidationError(core.ErrInvalidLongitude, fmt.Sprintf("longitude %g must be within -180..180", a.Lon))
	}
	return nil
}

func (a Around) String() string {
	return fmt.Sprintf("(around:%s,%s,%s)", fnum(a.Radius), fnum(a.Lat), fnum(a.Lon))
}

// Query is a key/tag search over an area. Exactly one of Area and Around
// must be set.
type Query struct {
	Key    string
	Tag    string
	Area   *BBox
	Around *Around
	// Output defaults to OutCenter.
	Output Output
	// Element restricts the search to one element type. Empty searches
	// node, way and rel.
	Element string
	// Recursion is an optional recurse step such as ">" or "<".
	Recursion string
	// Timeout in seconds; zero uses DefaultTimeout.
	Timeout int
}

// New returns a centre-output query for key=tag inside area
func New(key, tag string, area BBox) Query {
	return Query{Key: key, Tag: tag, Area: &area, Output: OutCenter}
}

// WindTurbines returns the wind turbine preset for area
func WindTurbines(area BBox) Query {
	return New("generator:method", "wind_turbine", area)
}

// Validate reports the first problem with q
func (q Query) Validate() error {
	if strings.TrimSpace(q.Key) == "" {
		return core.NewValidationError(core.ErrMissingParameter, "key is required")
	}
	switch {
	case q.Area == nil && q.Around == nil:
		return core.NewValidationError(core.ErrMissingParameter, "an area or an around filter is required")
	case q.Area != nil && q.Around != nil:
		return core.NewValidationError(core.ErrInvalidInput, "area and around are mutually exclusive")
	case q.Area != nil:
		if err := q.Area.Validate(); err != nil {
			return err
		}
	default:
		if err := q.Around.Validate(); err != nil {
			return err
		}
	}
	if q.Element != "" && !slices.Contains(validElements, q.Element) {
		return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("unknown element type %q", q.Element)).
			WithSuggestions(validElements...)
	}
	return validateCommon(q.Output, q.Recursion, q.Timeout)
}

// Build renders the query as Overpass QL
func (q Query) Build() string {
	spatial := ""
	switch {
	case q.Area != nil:
		spatial = q.Area.String()
	case q.Around != nil:
		spatial = q.Around.String()
	}

	elements := []string{"node", "way", "rel"}
	if q.Element != "" {
		elements = []string{q.Element}
	}

	var b strings.Builder
	writeHeader(&b, q.Timeout)
	b.WriteString("(")
	for _, el := range elements {
		b.WriteString(el)
		b.WriteString(tagFilter(q.Key, q.Tag))
		b.WriteString(spatial)
		b.WriteString(";")
	}
	writeTail(&b, q.Recursion, q.Output)
	return b.String()
}

// IDQuery fetches one element by type and id
type IDQuery struct {
	Type      string
	ID        int64
	Output    Output
	Recursion string
	Timeout   int
}

// Validate reports the first problem with q
func (q IDQuery) Validate() error {
	if !slices.Contains(validElements, q.Type) || q.Type == "nwr" {
		return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("unknown element type %q", q.Type)).
			WithSuggestions("node", "way", "rel")
	}
	if q.ID <= 0 {
		return core.NewValidationError(core.ErrInvalidInput, "id must be positive")
	}
	return validateCommon(q.Output, q.Recursion, q.Timeout)
}

// Build renders the query as Overpass QL, e.g. [out:json];(node(1););out center;
func (q IDQuery) Build() string {
	var b strings.Builder
	writeHeader(&b, q.Timeout)
	fmt.Fprintf(&b, "(%s(%d);", q.Type, q.ID)
	writeTail(&b, q.Recursion, q.Output)
	return b.String()
}

func validateCommon(out Output, recursion string, timeout int) error {
	if out != "" && !slices.Contains(validOutputs, out) {
		return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("unknown output mode %q", out)).
			WithSuggestions(string(OutCenter), string(OutGeom), string(OutBody))
	}
	if r := strings.TrimSuffix(strings.TrimSpace(recursion), ";"); r != "" && !slices.Contains(validRecursions, r) {
		return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("unknown recursion %q", recursion)).
			WithSuggestions(validRecursions...)
	}
	if timeout < 0 {
		return core.NewValidationError(core.ErrInvalidInput, "timeout must not be negative")
	}
	return nil
}

func writeHeader(b *strings.Builder, timeout int) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	fmt.Fprintf(b, "[out:json][timeout:%d];", timeout)
}

func writeTail(b *strings.Builder, recursion string, out Output) {
	if r := strings.TrimSuffix(strings.TrimSpace(recursion), ";"); r != "" {
		b.WriteString(r)
		b.WriteString(";")
	}
	if out == "" {
		out = OutCenter
	}
	fmt.Fprintf(b, ");out %s;", out)
}

// tagFilter renders ["key"="tag"], or ["key"] when tag is empty
func tagFilter(key, tag string) string {
	if tag == "" {
		return "[" + quote(key) + "]"
	}
	return "[" + quote(key) + "=" + quote(tag) + "]"
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func fnum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
