package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/engine/framebuffer"
	"github.com/Faultbox/midgard-globe/internal/engine/normalmap"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/internal/engine/shader"
	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/internal/logger"
)

// Texture is a GL texture owned by a segment.
type Texture struct {
	ID uint32
}

// Release deletes the texture. Must run on the GL goroutine.
func (t *Texture) Release() {
	if t.ID != 0 {
		gl.DeleteTextures(1, &t.ID)
		t.ID = 0
	}
}

// Gaussian taps of the blur pass: center, near and far weights, and the
// texel offsets of the near and far samples.
var (
	blurWeights = [3]float32{0.204164, 0.304005, 0.093913}
	blurOffsets = [2]float32{1.407333, 3.294215}
)

// blurSteps returns the per-pass texel step for a blur of the given radius
// on a size x size target: one horizontal and one vertical pass per unit.
func blurSteps(radius int, size int32) [][2]float32 {
	if radius <= 0 || size <= 0 {
		return nil
	}
	texel := 1 / float32(size)
	steps := make([][2]float32, 0, 2*radius)
	for i := 0; i < radius; i++ {
		steps = append(steps, [2]float32{texel, 0}, [2]float32{0, texel})
	}
	return steps
}

// NormalMapRasterizer draws normal grids into a shared framebuffer, blurs
// them in place and copies each result into its own texture. It implements
// normalmap.Rasterizer.
type NormalMapRasterizer struct {
	fb      *framebuffer.Framebuffer
	program *shader.Program
	blur    *shader.Program
	cache   *terrain.Cache
	steps   [][2]float32

	vao, vbo, ebo uint32
	quadVAO       uint32
	quadVBO       uint32
}

// NewNormalMapRasterizer creates the shared target. blur is the number of
// Gaussian passes per axis, zero disables it. Must run on the GL goroutine
// after the context exists.
func NewNormalMapRasterizer(cache *terrain.Cache, size int32, blur int) (*NormalMapRasterizer, error) {
	fb, err := framebuffer.New(size)
	if err != nil {
		return nil, fmt.Errorf("normal map target: %w", err)
	}
	prog, err := shader.New("normal map", normalMapVertexShader, normalMapFragmentShader)
	if err != nil {
		fb.Destroy()
		return nil, err
	}
	blurProg, err := shader.New("normal map blur", normalMapBlurVertexShader, normalMapBlurFragmentShader)
	if err != nil {
		prog.Delete()
		fb.Destroy()
		return nil, err
	}

	r := &NormalMapRasterizer{
		fb:      fb,
		program: prog,
		blur:    blurProg,
		cache:   cache,
		steps:   blurSteps(blur, fb.Size()),
	}
	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.GenBuffers(1, &r.ebo)

	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 5*4, nil)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, 5*4, unsafe.Pointer(uintptr(2*4)))
	gl.EnableVertexAttribArray(1)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	gl.BindVertexArray(0)

	quad := []float32{-1, -1, 1, -1, -1, 1, 1, 1}
	gl.GenVertexArrays(1, &r.quadVAO)
	gl.GenBuffers(1, &r.quadVBO)
	gl.BindVertexArray(r.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(quad), gl.STATIC_DRAW)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, nil)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)

	logger.Debug("normal map target created",
		zap.Int32("size", size),
		zap.Int("blurPasses", len(r.steps)))
	return r, nil
}

// Rasterize implements normalmap.Rasterizer.
func (r *NormalMapRasterizer) Rasterize(normals []float32, size int) (quadtree.Texture, error) {
	if size < 2 || len(normals) != size*size*3 {
		return nil, fmt.Errorf("%w: %d values for %d samples per side", normalmap.ErrBadNormals, len(normals), size)
	}
	cells := size - 1
	strip, err := r.cache.SegmentIndexes(terrain.Key{cells, cells, cells, cells, cells})
	if err != nil {
		return nil, fmt.Errorf("triangulating %d cells: %w", cells, err)
	}

	// North goes to y = -1 so texture row 0 holds the north edge.
	verts := make([]float32, 0, size*size*5)
	for i := 0; i < size; i++ {
		y := -1 + 2*float32(i)/float32(cells)
		for j := 0; j < size; j++ {
			x := -1 + 2*float32(j)/float32(cells)
			k := (i*size + j) * 3
			verts = append(verts, x, y, normals[k], normals[k+1], normals[k+2])
		}
	}

	restore := r.fb.Bind()
	defer restore()
	r.fb.Clear(0.5, 0.5, 1, 1)
	gl.Disable(gl.DEPTH_TEST)
	defer gl.Enable(gl.DEPTH_TEST)

	r.program.Use()
	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, gl.Ptr(verts), gl.STREAM_DRAW)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(strip)*4, gl.Ptr(strip), gl.STREAM_DRAW)
	gl.DrawElements(gl.TRIANGLE_STRIP, int32(len(strip)), gl.UNSIGNED_INT, nil)
	gl.BindVertexArray(0)

	tex := r.fb.CopyTexture()
	for _, step := range r.steps {
		tex = r.blurPass(tex, step)
	}
	return &Texture{ID: tex}, nil
}

// blurPass draws src blurred along step into the target, deletes src and
// returns the copied result. The target must be bound.
func (r *NormalMapRasterizer) blurPass(src uint32, step [2]float32) uint32 {
	r.blur.Use()
	r.blur.SetInt("uSource", 0)
	r.blur.SetVec2("uStep", step[0], step[1])
	r.blur.SetVec3("uWeights", blurWeights)
	r.blur.SetVec2("uOffsets", blurOffsets[0], blurOffsets[1])

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, src)
	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	dst := r.fb.CopyTexture()
	gl.DeleteTextures(1, &src)
	return dst
}

// Destroy frees the target and buffers.
func (r *NormalMapRasterizer) Destroy() {
	gl.DeleteVertexArrays(1, &r.vao)
	gl.DeleteBuffers(1, &r.vbo)
	gl.DeleteBuffers(1, &r.ebo)
	gl.DeleteVertexArrays(1, &r.quadVAO)
	gl.DeleteBuffers(1, &r.quadVBO)
	r.program.Delete()
	r.blur.Delete()
	r.fb.Destroy()
}
