package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagURL        = flag.String("url", "", "Elevation tile URL template")
	flagCache      = flag.String("cache", "", "Path to the persistent tile cache")
	flagOffline    = flag.Bool("offline", false, "Render the plain ellipsoid without elevation")
	flagCPUNormals = flag.Bool("cpu-normals", false, "Build normal maps on the CPU")
	flagWireframe  = flag.Bool("wireframe", false, "Draw triangle edges")
	flagSun        = flag.Bool("sun", false, "Light the globe from the current sun position")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Graphics.ShowStats = true
	}
	if *flagURL != "" {
		cfg.Terrain.URL = *flagURL
	}
	if *flagOffline {
		cfg.Terrain.URL = ""
	}
	if *flagCache != "" {
		cfg.Cache.Path = *flagCache
	}
	if *flagCPUNormals {
		cfg.NormalMap.Rasterizer = "cpu"
	}
	if *flagWireframe {
		cfg.Graphics.Wireframe = true
	}
	if *flagSun {
		cfg.Graphics.SunLight = true
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
}
