// Package geo provides the geographic primitives shared by the planet quadtree:
// extents, tile groups, web mercator and the reference ellipsoid.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	// MaxLat is the northern limit of the web mercator body.
	MaxLat = 85.0511287798
	// MinLat is the southern limit of the web mercator body.
	MinLat = -MaxLat
	// MaxPoleZoom is the zoom at which a polar row matches PolePieceSize.
	MaxPoleZoom = 7
)

// MercatorPole is the half width of the mercator plane in meters.
var MercatorPole = math.Pi * orb.EarthRadius

// PolePieceSize is the latitude span of one polar row at MaxPoleZoom.
var PolePieceSize = (90 - MaxLat) / float64(int(1)<<MaxPoleZoom)

// Quadrant indices of a node's children.
const (
	NW = iota
	NE
	SW
	SE
)

// Extent is an axis-aligned rectangle. Units depend on the tile group:
// mercator meters for the mercator body, degrees for the polar caps.
type Extent struct {
	orb.Bound
}

// NewExtent creates an extent from its south-west and north-east corners.
func NewExtent(sw, ne orb.Point) Extent {
	return Extent{orb.Bound{Min: sw, Max: ne}}
}

// SW returns the south-west corner.
func (e Extent) SW() orb.Point { return e.Min }

// NE returns the north-east corner.
func (e Extent) NE() orb.Point { return e.Max }

// Width returns the east-west span.
func (e Extent) Width() float64 { return e.Max[0] - e.Min[0] }

// Height returns the north-south span.
func (e Extent) Height() float64 { return e.Max[1] - e.Min[1] }

// Quadrants bisects the extent at its midpoint, returning children in
// NW, NE, SW, SE order.
func (e Extent) Quadrants() [4]Extent {
	c := e.Center()
	return [4]Extent{
		NW: NewExtent(orb.Point{e.Min[0], c[1]}, orb.Point{c[0], e.Max[1]}),
		NE: NewExtent(c, e.Max),
		SW: NewExtent(e.Min, c),
		SE: NewExtent(orb.Point{c[0], e.Min[1]}, orb.Point{e.Max[0], c[1]}),
	}
}

// Area returns width times height.
func (e Extent) Area() float64 { return e.Width() * e.Height() }

// Overlaps reports whether two extents share interior area.
func (e Extent) Overlaps(o Extent) bool {
	return e.Min[0] < o.Max[0] && o.Min[0] < e.Max[0] &&
		e.Min[1] < o.Max[1] && o.Min[1] < e.Max[1]
}

// ForwardMercator projects lon/lat degrees to mercator meters.
func ForwardMercator(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(p)
}

// InverseMercator unprojects mercator meters to lon/lat degrees.
func InverseMercator(p orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p)
}
