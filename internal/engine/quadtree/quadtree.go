// Package quadtree implements the planet level-of-detail tree.
//
// The surface is split into three tile groups (the web mercator body and two
// polar caps), each the root of a quadtree. Every frame the tree is walked top
// down: a node whose segment is small enough on screen is rendered, otherwise
// its four children are visited. The rendered nodes always tile the visible
// surface without gaps or overlaps.
//
// All methods must be called from the frame goroutine.
package quadtree

import (
	"github.com/Faultbox/midgard-globe/pkg/geo"
	"github.com/Faultbox/midgard-globe/pkg/math"
)

// State is the per-frame state of a node.
type State int8

const (
	// NotRendering nodes are neither drawn nor walked this frame.
	NotRendering State = iota
	// Rendering nodes are drawn this frame.
	Rendering
	// WalkThrough nodes were visited but delegate drawing to descendants.
	WalkThrough
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotRendering:
		return "not-rendering"
	case Rendering:
		return "rendering"
	case WalkThrough:
		return "walkthrough"
	default:
		return "unknown"
	}
}

// Camera is what the tree needs from the viewer.
type Camera interface {
	// Eye returns the camera position in ECEF meters.
	Eye() math.Vec3
	// ContainsSphere reports whether a sphere intersects the view frustum.
	ContainsSphere(s math.Sphere) bool
	// ProjectedSize returns the world-space half height of the view at p.
	ProjectedSize(p math.Vec3) float64
	// Altitude returns the height above the ellipsoid in meters.
	Altitude() float64
}

// TerrainLoader accepts segments that need elevation data. Implementations
// must call Segment.BeginTerrainLoad and later Segment.ApplyTerrain on the
// frame goroutine.
type TerrainLoader interface {
	HandleSegmentTerrain(seg *Segment)
}

// NormalMapQueue accepts segments whose normal map should be built.
type NormalMapQueue interface {
	Queue(seg *Segment)
}

// Texture is an opaque normal map handle owned by a segment.
type Texture interface {
	Release()
}

// Options configures LOD selection and terrain bookkeeping.
type Options struct {
	// RatioLOD is the projected-size to radius ratio above which a segment
	// is rendered instead of split.
	RatioLOD float64
	// MergeHysteresis widens the merge boundary so nodes near the LOD
	// threshold do not split and merge on alternate frames.
	MergeHysteresis float64

	// MinZoom and MaxZoom bound the zooms that request elevation data.
	MinZoom int
	MaxZoom int
	// GridSizeByZoom is the vertex grid size per zoom. Its length also
	// bounds how deep the tree may grow.
	GridSizeByZoom []int
	// FileGridSize is the elevation grid size of one tile.
	FileGridSize int
	HeightFactor float64

	// MinTraverseZoom forces nodes above this zoom to split.
	MinTraverseZoom int
	// MaxNodes triggers eviction of hidden branches when exceeded.
	MaxNodes int
	// MaxRenderedNodes stops descent once this many nodes render in a
	// frame. Nodes visited after that render at their own zoom, so the set
	// may exceed it by the siblings still pending.
	MaxRenderedNodes int

	// HorizonCulling skips segments behind the horizon when the camera is
	// below HorizonAltitude.
	HorizonCulling  bool
	HorizonAltitude float64

	// Poles adds the two polar caps next to the mercator body.
	Poles bool

	Ellipsoid geo.Ellipsoid
}

// DefaultOptions returns the settings used by the viewer.
func DefaultOptions() Options {
	return Options{
		RatioLOD:         1.12,
		MergeHysteresis:  1.25,
		MinZoom:          3,
		MaxZoom:          14,
		GridSizeByZoom:   []int{64, 32, 32, 16, 16, 8, 8, 8, 8, 16, 16, 16, 16, 32, 32, 16, 8, 4, 2, 2, 2, 2, 2},
		FileGridSize:     32,
		HeightFactor:     1,
		MinTraverseZoom:  2,
		MaxNodes:         2000,
		MaxRenderedNodes: 1000,
		HorizonCulling:   true,
		HorizonAltitude:  10000,
		Poles:            true,
		Ellipsoid:        geo.WGS84,
	}
}

// gridSize returns the vertex grid size for a zoom.
func (o *Options) gridSize(zoom int) int {
	if len(o.GridSizeByZoom) == 0 {
		return 16
	}
	if zoom < len(o.GridSizeByZoom) {
		return o.GridSizeByZoom[zoom]
	}
	return o.GridSizeByZoom[len(o.GridSizeByZoom)-1]
}

// maxNodeZoom is the deepest zoom the tree creates.
func (o *Options) maxNodeZoom() int {
	return max(len(o.GridSizeByZoom)-1, 0)
}

// TileKey identifies a tile across the three groups.
type TileKey struct {
	Group geo.Group
	Zoom  int
	X, Y  int
}

// parent returns the key of the enclosing tile dz levels up.
func (k TileKey) parent(dz int) TileKey {
	return TileKey{Group: k.Group, Zoom: k.Zoom - dz, X: k.X >> dz, Y: k.Y >> dz}
}
