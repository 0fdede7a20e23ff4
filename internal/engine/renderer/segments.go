package renderer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-globe/internal/engine/normalmap"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/pkg/math"
)

// Buffers unused for this many frames are freed.
const keepFrames = 120

// gpuSegment mirrors one segment's vertex and index data on the GPU.
// Vertices are stored relative to center in float32.
type gpuSegment struct {
	vao, vbo, tbo, ebo uint32
	count              int32
	center             math.Vec3

	verts    *float64
	nverts   int
	idx      *uint32
	lastUsed uint64
}

func (g *gpuSegment) delete() {
	gl.DeleteVertexArrays(1, &g.vao)
	gl.DeleteBuffers(1, &g.vbo)
	gl.DeleteBuffers(1, &g.tbo)
	gl.DeleteBuffers(1, &g.ebo)
}

type segmentBuffers struct {
	segs    map[*quadtree.Segment]*gpuSegment
	images  map[*normalmap.Image]uint32
	scratch []float32
}

func newSegmentBuffers() *segmentBuffers {
	return &segmentBuffers{
		segs:   make(map[*quadtree.Segment]*gpuSegment),
		images: make(map[*normalmap.Image]uint32),
	}
}

// get returns up-to-date buffers for seg. Segment slices are replaced, never
// edited in place, so comparing the first element pointers detects changes.
func (b *segmentBuffers) get(seg *quadtree.Segment, cache *terrain.Cache, frame uint64) (*gpuSegment, error) {
	verts := seg.Vertices()
	idx := seg.Indexes()
	if len(verts) == 0 || len(idx) == 0 {
		return nil, nil
	}

	g, ok := b.segs[seg]
	if !ok {
		g = &gpuSegment{}
		gl.GenVertexArrays(1, &g.vao)
		gl.GenBuffers(1, &g.vbo)
		gl.GenBuffers(1, &g.tbo)
		gl.GenBuffers(1, &g.ebo)
		gl.BindVertexArray(g.vao)
		gl.BindBuffer(gl.ARRAY_BUFFER, g.vbo)
		gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 3*4, nil)
		gl.EnableVertexAttribArray(0)
		gl.BindBuffer(gl.ARRAY_BUFFER, g.tbo)
		gl.VertexAttribPointer(1, 2, gl.FLOAT, false, 2*4, nil)
		gl.EnableVertexAttribArray(1)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, g.ebo)
		gl.BindVertexArray(0)
		b.segs[seg] = g
	}
	g.lastUsed = frame

	if g.verts != &verts[0] || g.nverts != len(verts) {
		tex, err := cache.TexCoords(seg.GridSize())
		if err != nil {
			return nil, err
		}
		if len(tex)/2 != len(verts)/3 {
			return nil, fmt.Errorf("grid %d has %d vertices and %d texture coordinates", seg.GridSize(), len(verts)/3, len(tex)/2)
		}

		g.center = seg.BoundingSphere().Center
		b.scratch = b.scratch[:0]
		for i := 0; i < len(verts); i += 3 {
			b.scratch = append(b.scratch,
				float32(verts[i]-g.center.X),
				float32(verts[i+1]-g.center.Y),
				float32(verts[i+2]-g.center.Z))
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, g.vbo)
		gl.BufferData(gl.ARRAY_BUFFER, len(b.scratch)*4, gl.Ptr(b.scratch), gl.STATIC_DRAW)
		gl.BindBuffer(gl.ARRAY_BUFFER, g.tbo)
		gl.BufferData(gl.ARRAY_BUFFER, len(tex)*4, gl.Ptr(tex), gl.STATIC_DRAW)
		g.verts, g.nverts = &verts[0], len(verts)
	}

	if g.idx != &idx[0] {
		gl.BindVertexArray(g.vao)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(idx)*4, gl.Ptr(idx), gl.DYNAMIC_DRAW)
		gl.BindVertexArray(0)
		g.idx = &idx[0]
		g.count = int32(len(idx))
	}
	return g, nil
}

// textureID resolves a segment texture to a GL name, uploading in-memory
// images on first use.
func (b *segmentBuffers) textureID(tex quadtree.Texture) uint32 {
	switch t := tex.(type) {
	case *Texture:
		return t.ID
	case *normalmap.Image:
		if t.Released() {
			return 0
		}
		if id, ok := b.images[t]; ok {
			return id
		}
		var id uint32
		gl.GenTextures(1, &id)
		gl.BindTexture(gl.TEXTURE_2D, id)
		bounds := t.Bounds()
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(bounds.Dx()), int32(bounds.Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(t.Pix))
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
		b.images[t] = id
		return id
	}
	return 0
}

// prune frees buffers of released or long unused segments and textures of
// released images.
func (b *segmentBuffers) prune(frame uint64) {
	for seg, g := range b.segs {
		if !seg.IsLive() || frame-g.lastUsed > keepFrames {
			g.delete()
			delete(b.segs, seg)
		}
	}
	for img, id := range b.images {
		if img.Released() {
			gl.DeleteTextures(1, &id)
			delete(b.images, img)
		}
	}
}

func (b *segmentBuffers) destroy() {
	for seg, g := range b.segs {
		g.delete()
		delete(b.segs, seg)
	}
	for img, id := range b.images {
		gl.DeleteTextures(1, &id)
		delete(b.images, img)
	}
}
