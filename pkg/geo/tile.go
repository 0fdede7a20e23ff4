package geo

import (
	"math"

	"github.com/paulmach/orb/maptile"
)

// MercatorTile returns the slippy-map tile containing the centre of a
// mercator extent.
func MercatorTile(e Extent, zoom int) (x, y int) {
	t := maptile.At(InverseMercator(e.Center()), maptile.Zoom(zoom))
	return int(t.X), int(t.Y)
}

// CapTile returns the tile coordinates of a polar cap extent. Columns count
// from the antimeridian; rows count away from the pole for the north cap and
// away from the mercator boundary for the south cap.
func CapTile(g Group, e Extent) (x, y int) {
	x = int(math.Round(math.Abs(-180-e.Min[0]) / e.Width()))
	switch g {
	case GroupNorth:
		y = int(math.Round((90 - e.Max[1]) / e.Height()))
	case GroupSouth:
		y = int(math.Round((MinLat - e.Max[1]) / e.Height()))
	}
	return x, y
}

// TileCount returns the number of tiles along one axis at zoom.
func TileCount(zoom int) int {
	return 1 << zoom
}
