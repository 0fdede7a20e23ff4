package quadtree

import (
	gomath "math"

	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

// neighborKey returns the equal-zoom tile across a side. Longitude wraps
// around and the mercator body joins the caps along its top and bottom rows.
func neighborKey(k TileKey, side terrain.Side) (TileKey, bool) {
	n := geo.TileCount(k.Zoom)
	nk := k
	switch side {
	case terrain.East:
		nk.X = (k.X + 1) % n
	case terrain.West:
		nk.X = (k.X - 1 + n) % n
	case terrain.North:
		if k.Y > 0 {
			nk.Y = k.Y - 1
			break
		}
		switch k.Group {
		case geo.GroupMercator:
			nk.Group, nk.Y = geo.GroupNorth, n-1
		case geo.GroupSouth:
			nk.Group, nk.Y = geo.GroupMercator, n-1
		default:
			return TileKey{}, false
		}
	case terrain.South:
		if k.Y < n-1 {
			nk.Y = k.Y + 1
			break
		}
		switch k.Group {
		case geo.GroupMercator:
			nk.Group, nk.Y = geo.GroupSouth, 0
		case geo.GroupNorth:
			nk.Group, nk.Y = geo.GroupMercator, 0
		default:
			return TileKey{}, false
		}
	}
	return nk, nk != k
}

// computeNeighbors sets every rendered segment's side sizes so shared edges
// use the coarser of the two grids.
func (t *Tree) computeNeighbors() {
	index := make(map[TileKey]*Node, len(t.rendered))
	for _, n := range t.rendered {
		index[n.seg.Key()] = n
		gs := n.seg.gridSize
		n.seg.sides = [4]int{gs, gs, gs, gs}
	}

	for _, a := range t.rendered {
		for side := terrain.North; side <= terrain.West; side++ {
			nk, ok := neighborKey(a.seg.Key(), side)
			if !ok {
				continue
			}
			for dz := 0; dz <= nk.Zoom; dz++ {
				if b, found := index[nk.parent(dz)]; found {
					if b != a {
						applyNeighbor(a.seg, b.seg, side)
					}
					break
				}
			}
		}
	}
}

// applyNeighbor stitches segment a to a neighbor b of equal or lower zoom
// across side. The finer edge takes the coarser density.
func applyNeighbor(a, b *Segment, side terrain.Side) {
	ld := float64(a.gridSize) / (float64(b.gridSize) * gomath.Pow(2, float64(b.Zoom-a.Zoom)))
	aSize, bSize := a.gridSize, b.gridSize
	switch {
	case ld > 1:
		aSize = int(gomath.Ceil(float64(a.gridSize) / ld))
	case ld < 1:
		bSize = int(gomath.Ceil(float64(b.gridSize) * ld))
	}
	opp := side.Opposite()
	a.sides[side] = max(min(a.sides[side], aSize), 1)
	b.sides[opp] = max(min(b.sides[opp], bSize), 1)
}
