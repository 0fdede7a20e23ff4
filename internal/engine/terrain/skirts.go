// Package terrain builds the index tables shared by every planet segment.
//
// A segment with grid size d has (d+1)^2 vertices laid out row by row from the
// north-west corner. Its index list is a single triangle strip: the interior body
// followed by the west, north, east and south border strips ("skirts"). Each
// skirt exists in one variant per neighbor grid size, so a segment next to a
// coarser neighbor only touches the outer vertices the neighbor also has.
package terrain

// Side identifies a segment edge.
type Side int

// Edge order matches the neighbor bookkeeping in the quadtree.
const (
	North Side = iota
	East
	South
	West
)

// String returns the side name.
func (s Side) String() string {
	switch s {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Opposite returns the facing side.
func (s Side) Opposite() Side {
	return (s + 2) % 4
}

// centerIndexes builds the interior strip for size = d+1 vertices per edge.
// It skips the outer ring and ends on the south-west corner so the west skirt
// continues the strip.
func centerIndexes(size int) []uint32 {
	var indexes []uint32
	var ind2 int
	for i := 1; i < size-2; i++ {
		nr := (i + 1) * size
		for j := 1; j < size-1; j++ {
			ind1 := i*size + j
			ind2 = nr + j
			indexes = append(indexes, uint32(ind1), uint32(ind2))
		}
		indexes = append(indexes, uint32(ind2), uint32(nr+1))
	}

	sw := uint32(size*size - size)
	last := sw
	if len(indexes) > 0 {
		last = indexes[len(indexes)-1]
	}
	return append(indexes, last, sw)
}

// westSkirt walks the west edge from the south-west corner northwards.
// nd is the neighbor grid size; outer vertices snap to multiples of d/nd.
func westSkirt(size, nd int) []uint32 {
	var indexes []uint32
	step := (size - 1) / nd
	b := size*size - size
	k := 0
	for i := 0; i < size-2; i++ {
		if i%step == 0 {
			k = i
		}
		indexes = append(indexes, uint32(b-size*k), uint32(b-size*i-size+1))
	}
	if nd == size-1 {
		indexes = append(indexes, uint32(size), 0)
	}
	return indexes
}

// northSkirt walks the north edge from the north-west corner eastwards.
func northSkirt(size, nd int) []uint32 {
	var indexes []uint32
	step := (size - 1) / nd
	k := 0
	for i := 0; i < size-2; i++ {
		if i%step == 0 {
			k = i
		}
		indexes = append(indexes, uint32(k), uint32(size+i+1))
	}
	if nd == size-1 {
		indexes = append(indexes, uint32(size-2), uint32(size-1))
	}
	return indexes
}

// eastSkirt walks the east edge from the north-east corner southwards.
func eastSkirt(size, nd int) []uint32 {
	var indexes []uint32
	step := (size - 1) / nd
	k := 0
	for i := 0; i < size-2; i++ {
		if i%step == 0 {
			k = i
		}
		indexes = append(indexes, uint32(size+size*k-1), uint32(size*(i+1)+size-2))
	}
	if nd == size-1 {
		indexes = append(indexes, uint32(size*(size-1)-1), uint32(size*size-1))
	}
	return indexes
}

// southSkirt walks the south edge from the south-east corner westwards and
// closes the ring on the south-west corner.
func southSkirt(size, nd int) []uint32 {
	var indexes []uint32
	step := (size - 1) / nd
	rb := size*(size-1) - 2
	lb := size*size - 1
	k := 0
	for i := 0; i < size-2; i++ {
		if i%step == 0 {
			k = i
		}
		indexes = append(indexes, uint32(lb-k), uint32(rb-i))
	}
	if nd == size-1 {
		indexes = append(indexes, uint32(size*size-size+1))
	}
	return append(indexes, uint32(size*size-size))
}

// textureCoords returns (u, v) pairs for every vertex of a d x d grid.
func textureCoords(d int) []float32 {
	coords := make([]float32, 0, (d+1)*(d+1)*2)
	for i := 0; i <= d; i++ {
		for j := 0; j <= d; j++ {
			coords = append(coords, float32(j)/float32(d), float32(i)/float32(d))
		}
	}
	return coords
}
