// Package renderer draws the globe with OpenGL.
package renderer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/engine/camera"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/internal/engine/shader"
	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/internal/logger"
	"github.com/Faultbox/midgard-globe/pkg/math"
)

// Config holds renderer configuration.
type Config struct {
	Width     int
	Height    int
	VSync     bool
	Wireframe bool
}

// Renderer handles all OpenGL rendering.
type Renderer struct {
	config Config
	cache  *terrain.Cache

	globe    *shader.Program
	segments *segmentBuffers

	frame uint64
	light math.Vec3 // zero means a headlight at the eye
}

// New creates a renderer. Must be called after the OpenGL context exists.
func New(cfg Config, cache *terrain.Cache) (*Renderer, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)

	globe, err := shader.New("globe", globeVertexShader, globeFragmentShader)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		config:   cfg,
		cache:    cache,
		globe:    globe,
		segments: newSegmentBuffers(),
	}
	r.Resize(cfg.Width, cfg.Height)
	return r, nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	logger.Info("closing renderer")
	r.segments.destroy()
	r.globe.Delete()
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	logger.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// SetWireframe toggles line rendering.
func (r *Renderer) SetWireframe(on bool) {
	r.config.Wireframe = on
}

// SetLightDir sets the direction toward the light in earth-centered
// coordinates. The zero vector restores the headlight.
func (r *Renderer) SetLightDir(d math.Vec3) {
	r.light = d
}

// ReadPixels returns the current frame as RGBA rows, bottom row first.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}
	pixels := make([]byte, w*h*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	return pixels, w, h
}

// Begin starts a new frame.
func (r *Renderer) Begin() {
	r.frame++
	gl.ClearColor(0.02, 0.02, 0.05, 1.0)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// DrawGlobe draws the rendered nodes of a frame.
func (r *Renderer) DrawGlobe(cam *camera.GlobeCamera, nodes []*quadtree.Node) {
	if r.config.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
		defer gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}
	gl.Disable(gl.CULL_FACE)
	defer gl.Enable(gl.CULL_FACE)

	eye := cam.Eye()
	viewProj := cam.ProjectionMatrix().Mul(cam.ViewMatrix())

	p := r.globe
	p.Use()
	p.SetMat4("uViewProj", viewProj)
	p.SetVec3("uEye", eye.Float32())
	light := r.light
	if light == (math.Vec3{}) {
		light = eye
	}
	p.SetVec3("uLightDir", light.Normalize().Float32())
	p.SetVec3("uColor", [3]float32{0.55, 0.6, 0.5})
	p.SetInt("uNormalMap", 0)

	for _, n := range nodes {
		seg := n.Segment()
		buf, err := r.segments.get(seg, r.cache, r.frame)
		if err != nil {
			logger.Warn("segment upload failed",
				zap.Uint64("node", n.ID()),
				zap.Int("zoom", seg.Zoom),
				zap.Error(err))
			continue
		}
		if buf == nil {
			continue
		}

		p.SetVec3("uOffset", buf.center.Sub(eye).Float32())
		r.bindNormalMap(seg)
		gl.BindVertexArray(buf.vao)
		gl.DrawElements(gl.TRIANGLE_STRIP, buf.count, gl.UNSIGNED_INT, nil)
	}
	gl.BindVertexArray(0)

	r.segments.prune(r.frame)
}

func (r *Renderer) bindNormalMap(seg *quadtree.Segment) {
	tex, bias := seg.NormalMap()
	id := r.segments.textureID(tex)
	if id == 0 {
		r.globe.SetInt("uHasNormalMap", 0)
		r.globe.SetVec3("uBias", [3]float32{0, 0, 1})
		return
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, id)
	r.globe.SetInt("uHasNormalMap", 1)
	r.globe.SetVec3("uBias", math.Vec3{X: bias[0], Y: bias[1], Z: bias[2]}.Float32())
}

// End finishes the current frame.
func (r *Renderer) End() {}
