package terrain

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrUnsupportedSize is returned for grid sizes that are not a power of two
// within the built range.
var ErrUnsupportedSize = errors.New("unsupported grid size")

// Tables holds the interior, texture coordinate and skirt tables for every
// power-of-two grid size up to 2^MaxPow. A Tables value is never modified after
// Build returns, so it is safe for concurrent readers.
type Tables struct {
	maxPow    int
	center    [][]uint32
	texCoords [][]float32
	skirts    [4][][][]uint32 // [side][pow][neighbor pow]
}

// Build creates the tables for grid sizes 1..2^maxPow.
func Build(maxPow int) *Tables {
	maxPow = max(maxPow, 0)
	t := &Tables{
		maxPow:    maxPow,
		center:    make([][]uint32, maxPow+1),
		texCoords: make([][]float32, maxPow+1),
	}
	for s := range t.skirts {
		t.skirts[s] = make([][][]uint32, maxPow+1)
	}

	for p := 0; p <= maxPow; p++ {
		d := 1 << p
		size := d + 1
		t.center[p] = centerIndexes(size)
		t.texCoords[p] = textureCoords(d)

		for s := range t.skirts {
			t.skirts[s][p] = make([][]uint32, maxPow+1)
		}
		for np := 0; np <= p; np++ {
			nd := 1 << np
			t.skirts[West][p][np] = westSkirt(size, nd)
			t.skirts[North][p][np] = northSkirt(size, nd)
			t.skirts[East][p][np] = eastSkirt(size, nd)
			t.skirts[South][p][np] = southSkirt(size, nd)
		}
	}
	return t
}

// MaxPow returns the largest power of two covered by the tables.
func (t *Tables) MaxPow() int {
	return t.maxPow
}

// MaxGridSize returns 2^MaxPow.
func (t *Tables) MaxGridSize() int {
	return 1 << t.maxPow
}

// pow converts a grid size to its table index.
func (t *Tables) pow(gridSize int) (int, error) {
	if gridSize <= 0 || gridSize&(gridSize-1) != 0 {
		return 0, fmt.Errorf("%w: %d is not a power of two", ErrUnsupportedSize, gridSize)
	}
	p := bits.TrailingZeros(uint(gridSize))
	if p > t.maxPow {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrUnsupportedSize, gridSize, t.MaxGridSize())
	}
	return p, nil
}

// Center returns the interior strip for a grid size.
func (t *Tables) Center(gridSize int) ([]uint32, error) {
	p, err := t.pow(gridSize)
	if err != nil {
		return nil, err
	}
	return t.center[p], nil
}

// TexCoords returns the per-vertex texture coordinates for a grid size.
func (t *Tables) TexCoords(gridSize int) ([]float32, error) {
	p, err := t.pow(gridSize)
	if err != nil {
		return nil, err
	}
	return t.texCoords[p], nil
}

// Skirt returns the border strip of one side. A neighbor at least as fine as
// the segment is stitched as an equal neighbor.
func (t *Tables) Skirt(side Side, gridSize, neighborSize int) ([]uint32, error) {
	p, err := t.pow(gridSize)
	if err != nil {
		return nil, err
	}
	np, err := t.pow(neighborSize)
	if err != nil {
		return nil, fmt.Errorf("%s neighbor: %w", side, err)
	}
	return t.skirts[side][p][min(np, p)], nil
}

// SegmentIndexes returns the full strip of a segment: interior, then the west,
// north, east and south skirts. Grid size 1 is a single quad.
func (t *Tables) SegmentIndexes(gridSize, north, west, south, east int) ([]uint32, error) {
	if gridSize == 1 {
		return []uint32{0, 2, 1, 3}, nil
	}

	c, err := t.Center(gridSize)
	if err != nil {
		return nil, err
	}

	parts := [4]struct {
		side Side
		size int
	}{{West, west}, {North, north}, {East, east}, {South, south}}

	total := len(c)
	skirts := make([][]uint32, len(parts))
	for i, p := range parts {
		s, err := t.Skirt(p.side, gridSize, p.size)
		if err != nil {
			return nil, err
		}
		skirts[i] = s
		total += len(s)
	}

	indexes := make([]uint32, 0, total)
	indexes = append(indexes, c...)
	for _, s := range skirts {
		indexes = append(indexes, s...)
	}
	return indexes, nil
}

// Key identifies a segment index list: own grid size and the N, W, S, E
// neighbor grid sizes.
type Key [5]int

// Cache owns the current Tables and memoizes concatenated segment index lists.
// Returned slices are shared and must not be modified.
type Cache struct {
	mu     sync.RWMutex
	tables *Tables
	memo   *lru.Cache[Key, []uint32]
	log    *zap.Logger
}

// NewCache creates a cache with tables up to 2^maxPow and room for memoSize
// index lists.
func NewCache(maxPow, memoSize int, log *zap.Logger) (*Cache, error) {
	memo, err := lru.New[Key, []uint32](max(memoSize, 1))
	if err != nil {
		return nil, fmt.Errorf("creating index memo: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{tables: Build(maxPow), memo: memo, log: log}, nil
}

// Tables returns the current immutable tables.
func (c *Cache) Tables() *Tables {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables
}

// EnsureGridSize grows the tables so gridSize is covered. Tables are only
// rebuilt when the power increases; it reports whether a rebuild happened.
func (c *Cache) EnsureGridSize(gridSize int) bool {
	if gridSize <= 0 {
		return false
	}
	p := bits.Len(uint(gridSize - 1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if p <= c.tables.maxPow {
		return false
	}
	c.tables = Build(p)
	c.memo.Purge()
	c.log.Debug("index tables rebuilt", zap.Int("maxGridSize", 1<<p))
	return true
}

// SegmentIndexes returns the memoized strip for a key.
func (c *Cache) SegmentIndexes(k Key) ([]uint32, error) {
	if v, ok := c.memo.Get(k); ok {
		return v, nil
	}
	v, err := c.Tables().SegmentIndexes(k[0], k[1], k[2], k[3], k[4])
	if err != nil {
		return nil, err
	}
	c.memo.Add(k, v)
	return v, nil
}

// TexCoords forwards to the current tables.
func (c *Cache) TexCoords(gridSize int) ([]float32, error) {
	return c.Tables().TexCoords(gridSize)
}
