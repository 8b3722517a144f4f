package render

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// MaxLatitude is the latitude limit of the Web Mercator projection
const MaxLatitude = 85.05112878

// Projector maps geographic coordinates to display coordinates
type Projector interface {
	// Project returns ok=false when (lat, lon) is outside its domain.
	Project(lat, lon float64) (x, y float64, ok bool)
}

// WebMercator projects to EPSG:3857 metres
type WebMercator struct{}

// Project implements Projector
func (WebMercator) Project(lat, lon float64) (x, y float64, ok bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > MaxLatitude || math.Abs(lon) > 180 {
		return 0, 0, false
	}
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p.X(), p.Y(), true
}

// ProjectBound projects a geographic bound to EPSG:3857 metres. Latitudes
// are clamped to MaxLatitude so a viewport reaching the poles still
// projects.
func (m WebMercator) ProjectBound(b orb.Bound) orb.Bound {
	clamp := func(lat float64) float64 { return min(max(lat, -MaxLatitude), MaxLatitude) }
	minX, minY, _ := m.Project(clamp(b.Min.Lat()), max(b.Min.Lon(), -180))
	maxX, maxY, _ := m.Project(clamp(b.Max.Lat()), min(b.Max.Lon(), 180))
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}
