package quadtree

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

// ErrNoCache is returned when a tree is created without index tables.
var ErrNoCache = errors.New("quadtree: index cache is required")

// Stats summarizes the last frame.
type Stats struct {
	Frame    uint64
	Nodes    int // live nodes
	Rendered int
	MaxZoom  int // deepest rendered zoom
	Merges   int // branches collapsed this frame
	Evicted  bool
}

// Tree owns the three group roots and the per-frame rendered set.
type Tree struct {
	opts    Options
	cache   *terrain.Cache
	loader  TerrainLoader
	normals NormalMapQueue
	log     *zap.Logger

	roots    []*Node
	rendered []*Node

	nextID  uint64
	created int
	frame   uint64
	merges  int
	evicted bool
}

// New creates a tree. loader and normals may be nil: segments then resolve
// to the plain ellipsoid and keep no normal map.
func New(opts Options, cache *terrain.Cache, loader TerrainLoader, normals NormalMapQueue, log *zap.Logger) (*Tree, error) {
	if cache == nil {
		return nil, ErrNoCache
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxRenderedNodes <= 0 {
		opts.MaxRenderedNodes = DefaultOptions().MaxRenderedNodes
	}

	largest := opts.FileGridSize
	for _, gs := range opts.GridSizeByZoom {
		largest = max(largest, gs)
	}
	cache.EnsureGridSize(largest)

	t := &Tree{
		opts:    opts,
		cache:   cache,
		loader:  loader,
		normals: normals,
		log:     log,
	}
	groups := []geo.Group{geo.GroupMercator}
	if opts.Poles {
		groups = append(groups, geo.GroupNorth, geo.GroupSouth)
	}
	for _, g := range groups {
		t.roots = append(t.roots, t.newNode(nil, 0, g, 0, g.RootExtent()))
	}
	return t, nil
}

// Options returns the tree settings.
func (t *Tree) Options() Options { return t.opts }

// Roots returns the group roots, mercator first.
func (t *Tree) Roots() []*Node { return t.roots }

// Frame selects the rendered set for a camera, stitches neighbor seams and
// evicts hidden branches when the node budget is exceeded.
func (t *Tree) Frame(cam Camera) {
	t.frame++
	t.rendered = t.rendered[:0]
	t.merges = 0
	t.evicted = false

	for _, r := range t.roots {
		r.renderTree(cam)
	}

	t.computeNeighbors()
	for _, n := range t.rendered {
		n.seg.updateIndexes(t.cache, t.log)
	}

	if t.opts.MaxNodes > 0 && t.created > t.opts.MaxNodes {
		before := t.created
		for _, r := range t.roots {
			r.clearTree()
		}
		t.evicted = true
		t.log.Debug("evicted hidden branches",
			zap.Int("before", before),
			zap.Int("after", t.created))
	}
}

// Rendered returns the nodes drawn this frame. The slice is reused by the
// next frame.
func (t *Tree) Rendered() []*Node { return t.rendered }

// NodeCount returns the number of live nodes.
func (t *Tree) NodeCount() int { return t.created }

// Stats returns counters for the last frame.
func (t *Tree) Stats() Stats {
	s := Stats{
		Frame:    t.frame,
		Nodes:    t.created,
		Rendered: len(t.rendered),
		Merges:   t.merges,
		Evicted:  t.evicted,
	}
	for _, n := range t.rendered {
		s.MaxZoom = max(s.MaxZoom, n.seg.Zoom)
	}
	return s
}

// Walk visits live nodes depth first until fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		for _, c := range n.children {
			if c != nil && !visit(c) {
				return false
			}
		}
		return true
	}
	for _, r := range t.roots {
		if !visit(r) {
			return
		}
	}
}

// Clear destroys every branch below the roots.
func (t *Tree) Clear() {
	for _, r := range t.roots {
		r.destroyBranches()
		r.state = NotRendering
	}
	t.rendered = t.rendered[:0]
}
