// Package coords parses the point and area strings accepted by the CLI and
// the MCP tools.
//
// Points may be given as:
//   - MGRS: Military Grid Reference System (e.g., "30UVG8597")
//   - DMS: Degrees Minutes Seconds (e.g., "55°57'12"N 3°11'20"W")
//   - Decimal Degrees: lat, lon (e.g., "55.953, -3.189")
//
// Areas use the Overpass bbox order "(south,west,north,east)".
package coords

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/akhenakh/mgrs"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/osm/queries"
)

// Format is the notation a point was written in
type Format int

const (
	FormatUnknown Format = iota
	FormatDecimal
	FormatDMS
	FormatMGRS
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatDecimal:
		return "decimal"
	case FormatDMS:
		return "dms"
	case FormatMGRS:
		return "mgrs"
	default:
		return "unknown"
	}
}

var (
	// Zone (1-60), latitude band (C-X without I and O), 100km square, digits.
	mgrsRegex = regexp.MustCompile(`(?i)^(\d{1,2})([C-HJ-NP-X])([A-HJ-NP-Z]{2})(\d{2,10})$`)

	dmsRegex = regexp.MustCompile(`(?i)^(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([NS])[\s,]+(\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([EW])$`)

	decimalRegex = regexp.MustCompile(`^(-?\d+(?:\.\d*)?)[,\s]+(-?\d+(?:\.\d*)?)$`)

	areaRegex = regexp.MustCompile(`^\(?\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*,\s*(-?[\d.]+)\s*\)?$`)
)

// DetectFormat reports which notation input matches without converting it
func DetectFormat(input string) Format {
	input = strings.TrimSpace(input)
	switch {
	case mgrsRegex.MatchString(input):
		return FormatMGRS
	case dmsRegex.MatchString(input):
		return FormatDMS
	case decimalRegex.MatchString(input):
		return FormatDecimal
	}
	return FormatUnknown
}

// ParsePoint converts a point in any supported notation to an orb.Point
// (lon, lat).
func ParsePoint(input string) (orb.Point, Format, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return orb.Point{}, FormatUnknown, core.NewValidationError(core.ErrMissingParameter, "empty coordinate")
	}

	var (
		lat, lon float64
		err      error
	)
	format := DetectFormat(input)
	switch format {
	case FormatMGRS:
		lat, lon, err = parseMGRS(input)
	case FormatDMS:
		lat, lon, err = parseDMS(input)
	case FormatDecimal:
		lat, lon, err = parseDecimal(input)
	default:
		return orb.Point{}, FormatUnknown, core.NewValidationError(core.ErrInvalidInput,
			fmt.Sprintf("unrecognized coordinate format: %q", input)).
			WithSuggestions("55.953, -3.189", `55°57'12"N 3°11'20"W`, "30UVG8597")
	}
	if err != nil {
		return orb.Point{}, format, err
	}
	if err := checkRange(lat, lon); err != nil {
		return orb.Point{}, format, err
	}
	return orb.Point{lon, lat}, format, nil
}

func parseMGRS(input string) (float64, float64, error) {
	lat, lon, err := mgrs.MGRSToLatLng(strings.ToUpper(input))
	if err != nil {
		return 0, 0, core.NewValidationError(core.ErrInvalidInput,
			fmt.Sprintf("invalid MGRS reference %q", input)).WithCause(err)
	}
	return lat, lon, nil
}

func parseDMS(input string) (float64, float64, error) {
	m := dmsRegex.FindStringSubmatch(input)
	lat, err := dmsValue(m[1], m[2], m[3], 90)
	if err != nil {
		return 0, 0, err
	}
	lon, err := dmsValue(m[5], m[6], m[7], 180)
	if err != nil {
		return 0, 0, err
	}
	if strings.EqualFold(m[4], "S") {
		lat = -lat
	}
	if strings.EqualFold(m[8], "W") {
		lon = -lon
	}
	return lat, lon, nil
}

func dmsValue(deg, mins, secs string, limit float64) (float64, error) {
	d, _ := strconv.ParseFloat(deg, 64)
	m, _ := strconv.ParseFloat(mins, 64)
	s, _ := strconv.ParseFloat(secs, 64)
	if d > limit || m >= 60 || s >= 60 {
		return 0, core.NewValidationError(core.ErrInvalidInput,
			fmt.Sprintf("invalid degrees/minutes/seconds %s %s %s", deg, mins, secs))
	}
	return d + m/60 + s/3600, nil
}

func parseDecimal(input string) (float64, float64, error) {
	m := decimalRegex.FindStringSubmatch(input)
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, core.NewValidationError(core.ErrInvalidLatitude, fmt.Sprintf("invalid latitude %q", m[1]))
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, core.NewValidationError(core.ErrInvalidLongitude, fmt.Sprintf("invalid longitude %q", m[2]))
	}
	return lat, lon, nil
}

func checkRange(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return core.NewValidationError(core.ErrInvalidLatitude, fmt.Sprintf("latitude %g must be within -90..90", lat))
	}
	if lon < -180 || lon > 180 {
		return core.NewValidationError(core.ErrInvalidLongitude, fmt.Sprintf("longitude %g must be within -180..180", lon))
	}
	return nil
}

// ParseArea parses "(south,west,north,east)", with or without the
// parentheses, into a validated bbox
func ParseArea(input string) (queries.BBox, error) {
	m := areaRegex.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return queries.BBox{}, core.NewValidationError(core.ErrInvalidArea,
			fmt.Sprintf("area %q is not (south,west,north,east)", input)).
			WithSuggestions("(55.85,-3.35,56.0,-3.05)")
	}

	var v [4]float64
	for i := range v {
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return queries.BBox{}, core.NewValidationError(core.ErrInvalidArea,
				fmt.Sprintf("invalid number %q in area", m[i+1])).WithCause(err)
		}
		v[i] = f
	}

	b := queries.BBox{South: v[0], West: v[1], North: v[2], East: v[3]}
	if err := b.Validate(); err != nil {
		return queries.BBox{}, err
	}
	return b, nil
}

// AreaAround returns the bbox of radius metres around p
func AreaAround(p orb.Point, radius float64) queries.BBox {
	b := geo.NewBoundAroundPoint(p, radius)
	return queries.BBox{
		South: max(b.Min.Lat(), -90),
		West:  max(b.Min.Lon(), -180),
		North: min(b.Max.Lat(), 90),
		East:  min(b.Max.Lon(), 180),
	}
}

// ToMGRS formats lat/lon as MGRS. precision 1-5 selects 10km down to 1m;
// anything else uses 1m.
func ToMGRS(lat, lon float64, precision int) (string, error) {
	if precision < 1 || precision > 5 {
		precision = 5
	}
	if err := checkRange(lat, lon); err != nil {
		return "", err
	}
	s, err := mgrs.LatLngToMGRS(lat, lon, precision)
	if err != nil {
		return "", core.NewError(core.ErrInvalidInput, "MGRS conversion failed").WithCause(err)
	}
	return s, nil
}
