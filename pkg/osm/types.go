package osm

import "time"

// LatLon is a geographic coordinate in degrees
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member. With geometry output, way members carry
// their vertices and node members their location.
type Member struct {
	Type     string    `json:"type"`
	Ref      int64     `json:"ref"`
	Role     string    `json:"role"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	Geometry []*LatLon `json:"geometry,omitempty"`
}

// Element is one node, way or relation from an Overpass response. Which
// location fields are set depends on the element type and output mode.
type Element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Center   *LatLon           `json:"center,omitempty"`
	Geometry []*LatLon         `json:"geometry,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Nodes    []int64           `json:"nodes,omitempty"`
	Members  []Member          `json:"members,omitempty"`
}

// Location returns the element's own coordinate, if it has one
func (e Element) Location() (LatLon, bool) {
	if e.Lat == nil || e.Lon == nil {
		return LatLon{}, false
	}
	return LatLon{Lat: *e.Lat, Lon: *e.Lon}, true
}

// Boundary returns the element's vertices. Relations without top-level
// geometry fall back to the concatenated geometry of their members.
func (e Element) Boundary() []LatLon {
	out := appendVertices(nil, e.Geometry)
	if len(out) > 0 || e.Type != "relation" {
		return out
	}
	for _, m := range e.Members {
		out = appendVertices(out, m.Geometry)
		if m.Lat != nil && m.Lon != nil {
			out = append(out, LatLon{Lat: *m.Lat, Lon: *m.Lon})
		}
	}
	return out
}

func appendVertices(dst []LatLon, src []*LatLon) []LatLon {
	for _, v := range src {
		if v != nil {
			dst = append(dst, *v)
		}
	}
	return dst
}

// Batch is one decoded Overpass response
type Batch struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
	OSM3S     struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
		Copyright        string `json:"copyright"`
	} `json:"osm3s"`

	// Query is the QL that produced the batch.
	Query string `json:"-"`
	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"-"`
}
