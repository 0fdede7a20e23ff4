// Package viewer implements the interactive globe: the frame loop that ties
// input, camera, terrain pipeline and renderer together.
package viewer

import (
	"fmt"
	gomath "math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/config"
	"github.com/Faultbox/midgard-globe/internal/engine/camera"
	"github.com/Faultbox/midgard-globe/internal/engine/debug"
	"github.com/Faultbox/midgard-globe/internal/engine/input"
	"github.com/Faultbox/midgard-globe/internal/engine/lighting"
	"github.com/Faultbox/midgard-globe/internal/engine/normalmap"
	"github.com/Faultbox/midgard-globe/internal/engine/planet"
	"github.com/Faultbox/midgard-globe/internal/engine/renderer"
	"github.com/Faultbox/midgard-globe/internal/engine/window"
	"github.com/Faultbox/midgard-globe/internal/logger"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

const title = "Midgard Globe"

// Viewer is the interactive globe instance.
type Viewer struct {
	cfg     *config.Config
	running bool
	log     *zap.Logger

	window   *window.Window
	renderer *renderer.Renderer
	raster   *renderer.NormalMapRasterizer
	input    *input.Input
	camera   *camera.GlobeCamera
	planet   *planet.Planet
	capture  *debug.Capture

	wireframe  bool
	suspended  bool
	suspendKey normalmap.Key
	screenshot bool
}

// New opens the window and builds the pipeline.
func New(cfg *config.Config) (*Viewer, error) {
	v := &Viewer{cfg: cfg, log: logger.Named("viewer"), wireframe: cfg.Graphics.Wireframe}
	v.log.Info("initializing viewer",
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
		zap.String("terrain", cfg.Terrain.URL),
	)

	opts, err := planet.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Create window (this also creates OpenGL context)
	v.window, err = window.New(window.Config{
		Title:      title,
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	}, logger.Named("window"))
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	cache, err := planet.NewCache(opts, logger.Named("terrain"))
	if err != nil {
		v.Close()
		return nil, err
	}
	opts.Cache = cache

	width, height := v.window.DrawableSize()
	v.renderer, err = renderer.New(renderer.Config{
		Width:     width,
		Height:    height,
		VSync:     cfg.Graphics.VSync,
		Wireframe: cfg.Graphics.Wireframe,
	}, cache)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	if cfg.NormalMap.Rasterizer == "gl" {
		v.raster, err = renderer.NewNormalMapRasterizer(cache, int32(cfg.NormalMap.Size), cfg.NormalMap.Blur)
		if err != nil {
			v.Close()
			return nil, err
		}
		opts.Rasterizer = v.raster
	}

	v.planet, err = planet.New(opts, logger.Named("planet"))
	if err != nil {
		v.Close()
		return nil, err
	}

	v.camera = camera.New(geo.WGS84, cfg.Camera.Lon, cfg.Camera.Lat, cfg.Camera.Height)
	v.camera.FovY = cfg.Camera.FovY * gomath.Pi / 180
	v.camera.SetViewport(width, height)

	v.input = input.New()
	v.capture = debug.NewCapture(cfg.Graphics.ScreenshotDir, "globe")

	v.log.Info("viewer initialized", zap.Bool("online", v.planet.Online()))
	return v, nil
}

// Run starts the frame loop and returns when the window closes.
func (v *Viewer) Run() error {
	v.running = true

	frameCount := 0
	fpsTimer := time.Now()
	var minFrame time.Duration
	if v.cfg.Graphics.FPSLimit > 0 {
		minFrame = time.Second / time.Duration(v.cfg.Graphics.FPSLimit)
	}

	v.log.Info("starting frame loop")

	for v.running {
		start := time.Now()

		if v.input.Update() {
			v.running = false
			break
		}
		v.handleEvents()

		v.input.Drive(v.camera)
		v.camera.Update()

		v.planet.Frame(v.camera)

		if v.cfg.Graphics.SunLight {
			v.renderer.SetLightDir(lighting.SunDirection(time.Now()))
		}
		v.renderer.Begin()
		v.renderer.DrawGlobe(v.camera, v.planet.Rendered())
		v.renderer.End()
		if v.screenshot {
			v.saveScreenshot()
		}
		v.window.SwapBuffers()

		frameCount++
		if since := time.Since(fpsTimer); since >= time.Second {
			v.report(float64(frameCount) / since.Seconds())
			frameCount = 0
			fpsTimer = time.Now()
		}

		if minFrame > 0 {
			if d := minFrame - time.Since(start); d > 0 {
				time.Sleep(d)
			}
		}
	}

	return nil
}

func (v *Viewer) handleEvents() {
	for _, event := range v.input.Events() {
		switch event.Type {
		case input.EventWindowResize:
			width, height := v.window.DrawableSize()
			v.renderer.Resize(width, height)
			v.camera.SetViewport(width, height)
		case input.EventKeyDown:
			v.handleKey(event.Key)
		}
	}
}

func (v *Viewer) handleKey(key sdl.Scancode) {
	switch key {
	case sdl.SCANCODE_F1:
		v.wireframe = !v.wireframe
		v.renderer.SetWireframe(v.wireframe)
	case sdl.SCANCODE_N:
		if v.suspended {
			v.planet.ResumeNormalMaps(v.suspendKey)
		} else {
			v.suspendKey = v.planet.SuspendNormalMaps()
		}
		v.suspended = !v.suspended
		v.log.Info("normal maps", zap.Bool("suspended", v.suspended))
	case sdl.SCANCODE_R:
		v.planet.ForgetFailures()
		v.log.Info("failed tiles will be requested again")
	case sdl.SCANCODE_BACKSPACE:
		v.planet.Abort()
	case sdl.SCANCODE_F12:
		v.screenshot = true
	}
}

// saveScreenshot reads back the frame before it is presented.
func (v *Viewer) saveScreenshot() {
	v.screenshot = false
	pixels, width, height := v.renderer.ReadPixels()
	path, err := v.capture.SaveFrame(pixels, width, height)
	if err != nil {
		v.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	v.log.Info("screenshot saved", zap.String("path", path))
}

// report logs the per-second counters and mirrors them in the title.
func (v *Viewer) report(fps float64) {
	st := v.planet.Stats()
	v.window.SetTitle(fmt.Sprintf("%s | %.0f fps | %s nodes | zoom %d | %d loading",
		title, fps, humanize.Comma(int64(st.Tree.Nodes)), st.Tree.MaxZoom,
		st.Provider.InFlight+st.Provider.Pending))

	if !v.cfg.Graphics.ShowStats {
		return
	}
	v.log.Debug("frame stats",
		zap.Float64("fps", fps),
		zap.Int("nodes", st.Tree.Nodes),
		zap.Int("rendered", st.Tree.Rendered),
		zap.Int("maxZoom", st.Tree.MaxZoom),
		zap.Int("inFlight", st.Provider.InFlight),
		zap.Int("pending", st.Provider.Pending),
		zap.Int("dropped", st.Provider.Dropped),
		zap.Int("normalMaps", st.NormalMaps.Built),
		zap.Float64("height", v.camera.Height),
	)
}

// Close releases the pipeline, GL objects and the window, in that order.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	if v.planet != nil {
		if err := v.planet.Close(); err != nil {
			v.log.Warn("closing planet", zap.Error(err))
		}
	}
	if v.raster != nil {
		v.raster.Destroy()
	}
	if v.renderer != nil {
		v.renderer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}
