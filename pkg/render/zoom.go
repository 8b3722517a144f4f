package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// TileSize is the pixel edge of a slippy-map tile
	TileSize = 256
	// MaxZoom is the deepest zoom FitZoom returns
	MaxZoom = maptile.Zoom(19)
)

// FitZoom returns the deepest zoom at which the rows' bound fits in a
// width x height pixel viewport. An empty result fits at MaxZoom.
func (r *Result) FitZoom(width, height int) maptile.Zoom {
	if len(r.Rows) == 0 {
		return MaxZoom
	}
	return FitZoom(r.Bounds(), width, height)
}

// FitZoom returns the deepest zoom at which b spans at most width x height
// pixels, counting whole tiles.
func FitZoom(b orb.Bound, width, height int) maptile.Zoom {
	b = clampBound(b)
	for z := MaxZoom; z > 0; z-- {
		// maptile rows grow southward, so the north-west corner is the min tile.
		nw := maptile.At(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
		se := maptile.At(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)
		cols := int(se.X-nw.X) + 1
		rows := int(se.Y-nw.Y) + 1
		if cols*TileSize <= width && rows*TileSize <= height {
			return z
		}
	}
	return 0
}

// TilesFor lists the tiles covering b at zoom z, row by row
func TilesFor(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	b = clampBound(b)
	nw := maptile.At(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
	se := maptile.At(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)

	var tiles []maptile.Tile
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}

// clampBound keeps b inside the tile grid. The east edge stays just short
// of 180 so it maps to the last column rather than past it.
func clampBound(b orb.Bound) orb.Bound {
	const east = 180 - 1e-9
	clamp := func(p orb.Point) orb.Point {
		return orb.Point{
			min(max(p.Lon(), -180), east),
			min(max(p.Lat(), -MaxLatitude), MaxLatitude),
		}
	}
	return orb.Bound{Min: clamp(b.Min), Max: clamp(b.Max)}
}

// TileURLs returns the URLs of the tiles covering the rows at the zoom
// FitZoom picks for the configured viewport. An empty result has none.
func (r *Result) TileURLs() []string {
	if len(r.Rows) == 0 {
		return nil
	}
	z := r.FitZoom(r.Config.Width, r.Config.Height)
	tiles := TilesFor(r.Bounds(), z)
	urls := make([]string, len(tiles))
	for i, t := range tiles {
		urls[i] = r.Tile.URL(uint32(t.Z), t.X, t.Y)
	}
	return urls
}
