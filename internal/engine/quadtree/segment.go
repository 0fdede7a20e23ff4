package quadtree

import (
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/pkg/formats"
	"github.com/Faultbox/midgard-globe/pkg/geo"
	"github.com/Faultbox/midgard-globe/pkg/math"
)

// Segment is the renderable surface patch of a node: its tile address, vertex
// grids, neighbor-aware index strip and normal map.
type Segment struct {
	node *Node

	Group geo.Group
	Zoom  int
	TileX int
	TileY int

	extent       geo.Extent // native group units
	lonLatExtent geo.Extent
	maxZoom      int // deepest zoom this segment may split to

	gridSize int    // size of the current vertex grid
	sides    [4]int // stitched neighbor grid size per terrain.Side

	plainReady     bool
	terrainReady   bool
	terrainLoading bool
	terrainExists  bool
	normalMapReady bool
	inQueue        bool
	released       bool
	epoch          uint64

	bsphere math.Sphere
	corners [4]math.Vec3

	plainGridSize   int
	plainVertices   []float64
	plainNormals    []float32
	terrainVertices []float64
	appliedFrom     uint64 // id of the node whose terrain the vertices come from

	normalMapNormals  []float32
	normalMapGridSize int
	normalMap         Texture
	inherited         Texture
	normalMapBias     [3]float64

	indexKey terrain.Key
	indexes  []uint32
}

func newSegment(n *Node, g geo.Group, zoom int, ext geo.Extent) *Segment {
	s := &Segment{node: n}
	s.assignTileIndexes(g, zoom, ext)
	return s
}

// assignTileIndexes derives tile coordinates and extents from the native
// extent.
func (s *Segment) assignTileIndexes(g geo.Group, zoom int, ext geo.Extent) {
	s.Group = g
	s.Zoom = zoom
	s.extent = ext
	s.lonLatExtent = g.LonLatExtent(ext)
	s.normalMapBias = [3]float64{0, 0, 1}

	opts := &s.node.tree.opts
	s.maxZoom = opts.maxNodeZoom()
	if g == geo.GroupMercator {
		s.TileX, s.TileY = geo.MercatorTile(ext, zoom)
	} else {
		s.TileX, s.TileY = geo.CapTile(g, ext)
		s.maxZoom = min(s.maxZoom, geo.PoleMaxZoom(g, ext.Max[1])+1)
	}

	ell := opts.Ellipsoid
	sw, ne := s.lonLatExtent.SW(), s.lonLatExtent.NE()
	s.corners = [4]math.Vec3{
		ell.LonLatToCartesian(sw[0], sw[1], 0),
		ell.LonLatToCartesian(sw[0], ne[1], 0),
		ell.LonLatToCartesian(ne[0], ne[1], 0),
		ell.LonLatToCartesian(ne[0], sw[1], 0),
	}
}

// Key returns the tile address.
func (s *Segment) Key() TileKey {
	return TileKey{Group: s.Group, Zoom: s.Zoom, X: s.TileX, Y: s.TileY}
}

// ID returns the owning node id.
func (s *Segment) ID() uint64 { return s.node.id }

// Epoch changes every time the segment is released. Asynchronous work
// captures it and compares before applying results.
func (s *Segment) Epoch() uint64 { return s.epoch }

// IsLive reports whether the segment still belongs to the tree.
func (s *Segment) IsLive() bool { return !s.released }

// NodeState returns the effective state of the owning node.
func (s *Segment) NodeState() State {
	if s.released {
		return NotRendering
	}
	return s.node.State()
}

// Extent returns the extent in the group's native units.
func (s *Segment) Extent() geo.Extent { return s.extent }

// LonLatExtent returns the extent in degrees.
func (s *Segment) LonLatExtent() geo.Extent { return s.lonLatExtent }

// GridSize returns the size of the current vertex grid.
func (s *Segment) GridSize() int { return s.gridSize }

// Sides returns the stitched neighbor grid sizes in terrain.Side order.
func (s *Segment) Sides() [4]int { return s.sides }

// BoundingSphere returns the current bounds.
func (s *Segment) BoundingSphere() math.Sphere { return s.bsphere }

// TerrainReady reports whether the segment's final geometry is in place.
func (s *Segment) TerrainReady() bool { return s.terrainReady }

// TerrainLoading reports whether an elevation request is in flight.
func (s *Segment) TerrainLoading() bool { return s.terrainLoading }

// TerrainExists reports whether that geometry carries elevation data.
func (s *Segment) TerrainExists() bool { return s.terrainExists }

// NormalMapReady reports whether the segment has its own normal map.
func (s *Segment) NormalMapReady() bool { return s.normalMapReady }

// Vertices returns ECEF positions for the current grid, terrain when present.
func (s *Segment) Vertices() []float64 {
	if s.terrainVertices != nil {
		return s.terrainVertices
	}
	return s.plainVertices
}

// Indexes returns the triangle strip for the current grid and neighbors.
func (s *Segment) Indexes() []uint32 { return s.indexes }

// NormalMap returns the texture to shade with and the bias that maps this
// segment into it: offset x, offset y and scale.
func (s *Segment) NormalMap() (Texture, [3]float64) {
	if s.normalMap != nil {
		return s.normalMap, [3]float64{0, 0, 1}
	}
	return s.inherited, s.normalMapBias
}

// NormalMapNormals returns per-sample normals and the samples per side used
// to build the normal map.
func (s *Segment) NormalMapNormals() ([]float32, int) {
	return s.normalMapNormals, s.normalMapGridSize
}

// gridLonLat returns the lon/lat of vertex (row i, column j) in an n x n cell grid.
func (s *Segment) gridLonLat(i, j, n int) orb.Point {
	e := s.extent
	p := orb.Point{
		e.Min[0] + float64(j)*e.Width()/float64(n),
		e.Max[1] - float64(i)*e.Height()/float64(n),
	}
	return s.Group.ToLonLat(p)
}

// CreatePlainVertices builds the ellipsoid surface grid with gridSize cells
// per side and resets the bounds.
func (s *Segment) CreatePlainVertices(gridSize int) {
	ell := s.node.tree.opts.Ellipsoid
	n := gridSize + 1
	s.gridSize = gridSize
	s.plainGridSize = gridSize
	s.plainVertices = make([]float64, 0, n*n*3)
	s.plainNormals = make([]float32, 0, n*n*3)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ll := s.gridLonLat(i, j, gridSize)
			p := ell.LonLatToCartesian(ll[0], ll[1], 0)
			nrm := ell.GeodeticNormal(ll[0], ll[1])
			s.plainVertices = append(s.plainVertices, p.X, p.Y, p.Z)
			s.plainNormals = append(s.plainNormals, float32(nrm.X), float32(nrm.Y), float32(nrm.Z))
		}
	}
	s.plainReady = true
	if s.terrainVertices == nil {
		s.bsphere = math.SphereFromPoints(s.plainVertices)
	}
}

// AcceptForRendering reports whether the segment is small enough on screen,
// or already at the deepest zoom its group allows (the pole limit for caps).
func (s *Segment) AcceptForRendering(cam Camera) bool {
	ratio := s.node.tree.opts.RatioLOD
	return cam.ProjectedSize(s.bsphere.Center) > ratio*s.bsphere.Radius || !s.splittable()
}

// splittable reports whether the segment may still have children.
func (s *Segment) splittable() bool {
	return s.Zoom < s.maxZoom
}

// BeginTerrainLoad marks an elevation request in flight. It returns false
// when the segment is released, already loading or already resolved.
func (s *Segment) BeginTerrainLoad() bool {
	if s.released || s.terrainLoading || s.terrainReady {
		return false
	}
	s.terrainLoading = true
	return true
}

// CancelTerrainLoad clears an in-flight mark so the request is made again.
func (s *Segment) CancelTerrainLoad() {
	s.terrainLoading = false
}

// ApplyTerrain resolves an in-flight request. A nil grid means the tile has
// no elevation data and the ellipsoid surface is used.
func (s *Segment) ApplyTerrain(g *formats.Grid) {
	if s.released || !s.terrainLoading {
		return
	}
	s.terrainLoading = false
	if g == nil || g.Size < 2 {
		s.terrainNotExists()
		return
	}

	opts := &s.node.tree.opts
	ell := opts.Ellipsoid
	gs := opts.gridSize(s.Zoom)
	if s.plainGridSize != gs || !s.plainReady {
		s.CreatePlainVertices(gs)
	}

	n := gs + 1
	scale := float64(g.Size-1) / float64(gs)
	verts := make([]float64, 0, n*n*3)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h := float64(g.Sample(float64(j)*scale, float64(i)*scale)) * opts.HeightFactor
			k := (i*n + j) * 3
			verts = append(verts,
				s.plainVertices[k]+float64(s.plainNormals[k])*h,
				s.plainVertices[k+1]+float64(s.plainNormals[k+1])*h,
				s.plainVertices[k+2]+float64(s.plainNormals[k+2])*h,
			)
		}
	}

	// Positions at full elevation resolution for the normal map.
	fn := g.Size
	pos := make([]math.Vec3, fn*fn)
	for i := 0; i < fn; i++ {
		for j := 0; j < fn; j++ {
			ll := s.gridLonLat(i, j, fn-1)
			h := float64(g.Heights[i*fn+j]) * opts.HeightFactor
			pos[i*fn+j] = ell.LonLatToCartesian(ll[0], ll[1], h)
		}
	}
	s.normalMapNormals = gridNormals(pos, fn)
	s.normalMapGridSize = fn

	s.gridSize = gs
	s.terrainVertices = verts
	s.appliedFrom = s.node.id
	s.bsphere = math.SphereFromPoints(verts)
	s.terrainReady = true
	s.terrainExists = true
}

// terrainNotExists resolves the segment without elevation data.
func (s *Segment) terrainNotExists() {
	opts := &s.node.tree.opts
	if s.Zoom > opts.MaxZoom && s.terrainVertices != nil {
		// Keep the inherited surface.
		s.terrainReady = true
		s.terrainExists = false
		return
	}

	gs := opts.gridSize(s.Zoom)
	if s.plainGridSize != gs || !s.plainReady {
		s.CreatePlainVertices(gs)
	}
	s.gridSize = gs
	s.terrainVertices = s.plainVertices
	s.normalMapNormals = s.plainNormals
	s.normalMapGridSize = gs + 1
	s.appliedFrom = s.node.id
	s.bsphere = math.SphereFromPoints(s.plainVertices)
	s.terrainReady = true
	s.terrainExists = false
}

// inheritTerrain shows a window of an ancestor's vertex grid until the
// segment's own data arrives.
func (s *Segment) inheritTerrain(p *Segment) {
	dz := 1 << (s.Zoom - p.Zoom)
	offX := float64(s.TileX - p.TileX*dz)
	offY := float64(s.TileY - p.TileY*dz)
	pgs := p.gridSize
	gs := max(pgs/dz, 1)

	src := p.Vertices()
	pn := pgs + 1
	at := func(r, c int) math.Vec3 {
		r = min(max(r, 0), pgs)
		c = min(max(c, 0), pgs)
		k := (r*pn + c) * 3
		return math.Vec3{X: src[k], Y: src[k+1], Z: src[k+2]}
	}

	n := gs + 1
	verts := make([]float64, 0, n*n*3)
	for i := 0; i < n; i++ {
		fy := (offY + float64(i)/float64(gs)) / float64(dz) * float64(pgs)
		for j := 0; j < n; j++ {
			fx := (offX + float64(j)/float64(gs)) / float64(dz) * float64(pgs)
			x0, y0 := int(fx), int(fy)
			tx, ty := fx-float64(x0), fy-float64(y0)
			top := at(y0, x0).Lerp(at(y0, x0+1), tx)
			bottom := at(y0+1, x0).Lerp(at(y0+1, x0+1), tx)
			v := top.Lerp(bottom, ty)
			verts = append(verts, v.X, v.Y, v.Z)
		}
	}

	s.gridSize = gs
	s.terrainVertices = verts
	s.appliedFrom = p.node.id
	s.bsphere = math.SphereFromPoints(verts)

	maxZoom := s.node.tree.opts.MaxZoom
	if s.Zoom > maxZoom && p.Zoom >= maxZoom {
		s.terrainReady = true
		s.terrainLoading = false
		s.terrainExists = p.terrainExists
	}
}

// SetNormalMap hands a freshly built texture to the segment. Textures for
// released segments are released immediately.
func (s *Segment) SetNormalMap(tex Texture) {
	s.inQueue = false
	if s.released {
		if tex != nil {
			tex.Release()
		}
		return
	}
	if s.normalMap != nil && s.normalMap != tex {
		s.normalMap.Release()
	}
	s.normalMap = tex
	s.normalMapReady = tex != nil
	s.inherited = nil
	s.normalMapBias = [3]float64{0, 0, 1}
}

// MarkQueued records that the segment waits in the normal map queue. It
// returns false if it already does.
func (s *Segment) MarkQueued() bool {
	if s.inQueue {
		return false
	}
	s.inQueue = true
	return true
}

// Dequeued clears the queue mark without delivering a texture.
func (s *Segment) Dequeued() { s.inQueue = false }

// InQueue reports whether the segment waits for a normal map.
func (s *Segment) InQueue() bool { return s.inQueue }

// updateIndexes refreshes the index strip when the grid or a neighbor changed.
func (s *Segment) updateIndexes(cache *terrain.Cache, log *zap.Logger) {
	gs := s.gridSize
	k := terrain.Key{
		gs,
		min(s.sides[terrain.North], gs),
		min(s.sides[terrain.West], gs),
		min(s.sides[terrain.South], gs),
		min(s.sides[terrain.East], gs),
	}
	if k == s.indexKey && s.indexes != nil {
		return
	}
	idx, err := cache.SegmentIndexes(k)
	if err != nil {
		log.Warn("segment indexes unavailable",
			zap.Stringer("group", s.Group),
			zap.Int("zoom", s.Zoom),
			zap.Ints("key", k[:]),
			zap.Error(err))
		k = terrain.Key{gs, gs, gs, gs, gs}
		if idx, err = cache.SegmentIndexes(k); err != nil {
			return
		}
	}
	s.indexKey = k
	s.indexes = idx
}

// release frees buffers and invalidates outstanding asynchronous work.
func (s *Segment) release() {
	s.released = true
	s.epoch++
	s.terrainLoading = false
	s.inQueue = false
	s.normalMapReady = false
	if s.normalMap != nil {
		s.normalMap.Release()
		s.normalMap = nil
	}
	s.inherited = nil
	s.plainVertices = nil
	s.plainNormals = nil
	s.terrainVertices = nil
	s.normalMapNormals = nil
	s.indexes = nil
}

// gridNormals computes outward unit normals for an n x n grid of positions
// laid out north to south, west to east.
func gridNormals(pos []math.Vec3, n int) []float32 {
	out := make([]float32, 0, n*n*3)
	at := func(i, j int) math.Vec3 {
		return pos[min(max(i, 0), n-1)*n+min(max(j, 0), n-1)]
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			east := at(i, j+1).Sub(at(i, j-1))
			north := at(i-1, j).Sub(at(i+1, j))
			nrm := east.Cross(north).Normalize()
			if nrm == (math.Vec3{}) {
				// Collapsed row at a pole.
				nrm = at(i, j).Normalize()
			}
			out = append(out, float32(nrm.X), float32(nrm.Y), float32(nrm.Z))
		}
	}
	return out
}
