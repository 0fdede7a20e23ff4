package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Group identifies which tiling a node belongs to.
type Group int8

const (
	// GroupMercator is the web mercator body between MinLat and MaxLat.
	GroupMercator Group = iota
	// GroupNorth is the lon/lat cap above MaxLat.
	GroupNorth
	// GroupSouth is the lon/lat cap below MinLat.
	GroupSouth
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupMercator:
		return "mercator"
	case GroupNorth:
		return "north"
	case GroupSouth:
		return "south"
	default:
		return "unknown"
	}
}

// RootExtent returns the zoom 0 extent of a group.
func (g Group) RootExtent() Extent {
	switch g {
	case GroupNorth:
		return NewExtent(orb.Point{-180, MaxLat}, orb.Point{180, 90})
	case GroupSouth:
		return NewExtent(orb.Point{-180, -90}, orb.Point{180, MinLat})
	default:
		return NewExtent(orb.Point{-MercatorPole, -MercatorPole}, orb.Point{MercatorPole, MercatorPole})
	}
}

// ToLonLat converts a point in the group's native units to lon/lat degrees.
func (g Group) ToLonLat(p orb.Point) orb.Point {
	if g == GroupMercator {
		return InverseMercator(p)
	}
	return p
}

// LonLatExtent returns an extent in degrees regardless of group.
func (g Group) LonLatExtent(e Extent) Extent {
	if g == GroupMercator {
		return NewExtent(InverseMercator(e.Min), InverseMercator(e.Max))
	}
	return e
}

// PoleMaxZoom returns the deepest zoom allowed for a cap segment whose
// north-east latitude is neLat. Rows far from the pole may go deeper.
func PoleMaxZoom(g Group, neLat float64) int {
	switch g {
	case GroupNorth:
		yz := int(math.Floor((90 - neLat) / PolePieceSize))
		return yz/16 + MaxPoleZoom
	case GroupSouth:
		yz := int(math.Floor((MinLat - neLat) / PolePieceSize))
		return 12 - yz/16
	default:
		return math.MaxInt32
	}
}
