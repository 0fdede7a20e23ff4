package quadtree

import (
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

// minHorizonDist2 keeps the horizon from collapsing when the camera is very
// close to the surface.
const minHorizonDist2 = 106876472875.63281

// Node is one tile of the quadtree.
type Node struct {
	tree     *Tree
	parent   *Node
	children [4]*Node // NW, NE, SW, SE; all nil for a leaf
	quadrant int

	id    uint64
	state State
	seg   *Segment
}

func (t *Tree) newNode(parent *Node, quadrant int, g geo.Group, zoom int, ext geo.Extent) *Node {
	t.nextID++
	t.created++
	n := &Node{
		tree:     t,
		parent:   parent,
		quadrant: quadrant,
		id:       t.nextID,
	}
	n.seg = newSegment(n, g, zoom, ext)
	n.seg.CreatePlainVertices(t.opts.gridSize(zoom))
	return n
}

// ID returns the unique node id.
func (n *Node) ID() uint64 { return n.id }

// Segment returns the node's surface patch.
func (n *Node) Segment() *Segment { return n.seg }

// Parent returns the parent node, nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes, all nil for a leaf.
func (n *Node) Children() [4]*Node { return n.children }

func (n *Node) hasChildren() bool { return n.children[0] != nil }

// State returns the effective state: a node whose ancestor is not being
// walked through this frame is not rendering, whatever it last recorded.
func (n *Node) State() State {
	for p := n.parent; p != nil; p = p.parent {
		if p.state != WalkThrough {
			return NotRendering
		}
	}
	return n.state
}

func (n *Node) createChildren() {
	s := n.seg
	for q, ext := range s.extent.Quadrants() {
		n.children[q] = n.tree.newNode(n, q, s.Group, s.Zoom+1, ext)
	}
}

// renderTree selects this node, its descendants or nothing for rendering.
func (n *Node) renderTree(cam Camera) {
	t := n.tree
	n.state = WalkThrough

	seg := n.seg
	if !cam.ContainsSphere(seg.bsphere) || !n.aboveHorizon(cam) {
		n.state = NotRendering
		return
	}

	// Over budget the tree stops descending, but every visible node still
	// renders at its current zoom so the surface stays covered.
	if len(t.rendered) >= t.opts.MaxRenderedNodes {
		n.renderNode()
		return
	}

	if seg.Zoom < t.opts.MinTraverseZoom && seg.splittable() {
		n.traverse(cam)
		return
	}

	accept := seg.AcceptForRendering(cam)
	if accept && n.hasChildren() && !n.childrenRequestMerge(cam) {
		accept = false
	}

	switch {
	case !accept && seg.terrainReady:
		n.traverse(cam)
	case accept && n.hasChildren():
		n.destroyBranches()
		t.merges++
		n.renderNode()
	default:
		n.renderNode()
	}
}

func (n *Node) traverse(cam Camera) {
	if !n.hasChildren() {
		n.createChildren()
	}
	for _, c := range n.children {
		c.renderTree(cam)
	}
}

// childrenRequestMerge reports whether every child is far enough away to be
// replaced by this node. The merge boundary lies beyond the split boundary.
func (n *Node) childrenRequestMerge(cam Camera) bool {
	opts := &n.tree.opts
	limit := opts.RatioLOD * opts.MergeHysteresis * n.seg.bsphere.Radius
	for _, c := range n.children {
		if cam.ProjectedSize(c.seg.bsphere.Center) <= limit {
			return false
		}
	}
	return true
}

// aboveHorizon reports whether any segment corner is nearer than the horizon.
func (n *Node) aboveHorizon(cam Camera) bool {
	opts := &n.tree.opts
	if !opts.HorizonCulling || n.seg.Zoom < 2 || cam.Altitude() > opts.HorizonAltitude {
		return true
	}
	eye := cam.Eye()
	b := opts.Ellipsoid.B
	horizon2 := max(eye.Length2()-b*b, minHorizonDist2)
	for _, c := range n.seg.corners {
		if eye.Sub(c).Length2() < horizon2 {
			return true
		}
	}
	return false
}

func (n *Node) renderNode() {
	t := n.tree
	seg := n.seg
	if !seg.terrainReady {
		n.whileTerrainLoading()
		n.loadTerrain()
	}
	if !seg.normalMapReady {
		n.whileNormalMapCreating()
	}
	n.state = Rendering
	t.rendered = append(t.rendered, n)
}

// loadTerrain requests elevation data or resolves the segment without it.
func (n *Node) loadTerrain() {
	t := n.tree
	seg := n.seg
	switch {
	case seg.terrainReady || seg.terrainLoading:
	case seg.Zoom < t.opts.MinZoom || t.loader == nil:
		seg.terrainLoading = true
		seg.ApplyTerrain(nil)
	case seg.Zoom > t.opts.MaxZoom:
		// Resolved from the ancestor at MaxZoom.
	default:
		t.loader.HandleSegmentTerrain(seg)
	}
}

// whileTerrainLoading shows the nearest resolved ancestor's surface.
func (n *Node) whileTerrainLoading() {
	seg := n.seg
	p := n.parent
	for p != nil && !(p.seg.terrainReady && p.seg.terrainVertices != nil) {
		p = p.parent
	}
	if p == nil || seg.appliedFrom == p.id {
		return
	}
	seg.inheritTerrain(p.seg)
}

// whileNormalMapCreating queues the segment's own normal map and borrows the
// nearest ancestor's until it is ready.
func (n *Node) whileNormalMapCreating() {
	t := n.tree
	seg := n.seg
	if t.normals != nil && seg.Zoom <= t.opts.MaxZoom && seg.terrainReady &&
		!seg.terrainLoading && !seg.inQueue && seg.normalMapNormals != nil {
		t.normals.Queue(seg)
	}

	p := n.parent
	for p != nil && !p.seg.normalMapReady {
		p = p.parent
	}
	if p == nil {
		return
	}
	dz := 1 << (seg.Zoom - p.seg.Zoom)
	seg.inherited = p.seg.normalMap
	seg.normalMapBias = [3]float64{
		float64(seg.TileX - p.seg.TileX*dz),
		float64(seg.TileY - p.seg.TileY*dz),
		1 / float64(dz),
	}
}

// destroy releases the node and its whole subtree.
func (n *Node) destroy() {
	n.destroyBranches()
	n.state = NotRendering
	n.seg.release()
	n.tree.created--
}

// destroyBranches removes all descendants, keeping the node itself.
func (n *Node) destroyBranches() {
	if !n.hasChildren() {
		return
	}
	for i, c := range n.children {
		c.destroy()
		n.children[i] = nil
	}
}

// clearTree drops every branch that is not being walked through.
func (n *Node) clearTree() {
	if n.State() != WalkThrough {
		n.destroyBranches()
		return
	}
	for _, c := range n.children {
		if c != nil {
			c.clearTree()
		}
	}
}
