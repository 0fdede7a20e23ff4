// Package config handles globe configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/Faultbox/midgard-globe/pkg/formats"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("invalid config")

// Config holds all globe settings.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	LOD       LODConfig       `yaml:"lod"`
	NormalMap NormalMapConfig `yaml:"normal_map"`
	Cache     CacheConfig     `yaml:"cache"`
	Graphics  GraphicsConfig  `yaml:"graphics"`
	Camera    CameraConfig    `yaml:"camera"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TerrainConfig describes the elevation source.
type TerrainConfig struct {
	URL             string        `yaml:"url"`
	Subdomains      []string      `yaml:"subdomains"`
	Format          string        `yaml:"format"`
	MinZoom         int           `yaml:"min_zoom"`
	MaxZoom         int           `yaml:"max_zoom"`
	GridSizeByZoom  []int         `yaml:"grid_size_by_zoom"`
	FileGridSize    int           `yaml:"file_grid_size"`
	MaxLoadingTiles int           `yaml:"max_loading_tiles"`
	HeightFactor    float64       `yaml:"height_factor"`
	Timeout         time.Duration `yaml:"timeout"`
}

// LODConfig holds the level of detail settings.
type LODConfig struct {
	Ratio            float64 `yaml:"ratio"`
	MergeHysteresis  float64 `yaml:"merge_hysteresis"`
	MaxNodes         int     `yaml:"max_nodes"`
	MaxRenderedNodes int     `yaml:"max_rendered_nodes"`
	HorizonCulling   bool    `yaml:"horizon_culling"`
	Poles            bool    `yaml:"poles"`
}

// NormalMapConfig holds normal map build settings.
type NormalMapConfig struct {
	Size       int    `yaml:"size"`
	Blur       int    `yaml:"blur"`
	Tolerance  int    `yaml:"tolerance"`
	Rasterizer string `yaml:"rasterizer"` // "gl" or "cpu"
}

// CacheConfig holds tile and index cache settings.
type CacheConfig struct {
	MemoryTiles int           `yaml:"memory_tiles"`
	Path        string        `yaml:"path"` // bbolt file, empty disables it
	FailureTTL  time.Duration `yaml:"failure_ttl"`
	IndexMemo   int           `yaml:"index_memo"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`
	Wireframe  bool `yaml:"wireframe"`
	ShowStats  bool `yaml:"show_stats"`
	// SunLight lights the globe from the real sun position instead of
	// from the camera.
	SunLight      bool   `yaml:"sun_light"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// CameraConfig holds the start position.
type CameraConfig struct {
	Lon    float64 `yaml:"lon"`
	Lat    float64 `yaml:"lat"`
	Height float64 `yaml:"height"`
	FovY   float64 `yaml:"fov_y"` // degrees
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			URL:             "https://openglobus.org/heights/srtm3/{z}/{y}/{x}.ddm",
			Format:          string(formats.FormatDDM),
			MinZoom:         3,
			MaxZoom:         14,
			GridSizeByZoom:  []int{64, 32, 32, 16, 16, 8, 8, 8, 8, 16, 16, 16, 16, 32, 32, 16, 8, 4, 2, 2, 2, 2, 2},
			FileGridSize:    32,
			MaxLoadingTiles: 8,
			HeightFactor:    1,
			Timeout:         15 * time.Second,
		},
		LOD: LODConfig{
			Ratio:            1.12,
			MergeHysteresis:  1.25,
			MaxNodes:         2000,
			MaxRenderedNodes: 1000,
			HorizonCulling:   true,
			Poles:            true,
		},
		NormalMap: NormalMapConfig{
			Size:       128,
			Blur:       1,
			Tolerance:  20,
			Rasterizer: "gl",
		},
		Cache: CacheConfig{
			MemoryTiles: 512,
			Path:        "",
			FailureTTL:  5 * time.Minute,
			IndexMemo:   256,
		},
		Graphics: GraphicsConfig{
			Width:         1280,
			Height:        720,
			VSync:         true,
			ScreenshotDir: "screenshots",
		},
		Camera: CameraConfig{
			Lon:    10,
			Lat:    46,
			Height: 2e7,
			FovY:   60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the settings the terrain pipeline depends on.
func (c *Config) Validate() error {
	t := c.Terrain
	if _, err := formats.ParseFormat(t.Format); err != nil {
		return fmt.Errorf("%w: terrain.format: %w", ErrInvalid, err)
	}
	if len(t.GridSizeByZoom) == 0 {
		return fmt.Errorf("%w: terrain.grid_size_by_zoom is empty", ErrInvalid)
	}
	for z, gs := range t.GridSizeByZoom {
		if !powerOfTwo(gs) {
			return fmt.Errorf("%w: terrain.grid_size_by_zoom[%d] = %d is not a power of two", ErrInvalid, z, gs)
		}
	}
	if !powerOfTwo(t.FileGridSize) {
		return fmt.Errorf("%w: terrain.file_grid_size = %d is not a power of two", ErrInvalid, t.FileGridSize)
	}
	if t.MinZoom < 0 || t.MinZoom > t.MaxZoom {
		return fmt.Errorf("%w: terrain zoom range [%d, %d]", ErrInvalid, t.MinZoom, t.MaxZoom)
	}
	if t.MaxZoom >= len(t.GridSizeByZoom) {
		return fmt.Errorf("%w: terrain.max_zoom %d has no grid size", ErrInvalid, t.MaxZoom)
	}
	if t.MaxLoadingTiles < 1 {
		return fmt.Errorf("%w: terrain.max_loading_tiles must be at least 1", ErrInvalid)
	}
	if c.LOD.Ratio <= 0 || c.LOD.MergeHysteresis < 1 {
		return fmt.Errorf("%w: lod ratio %v hysteresis %v", ErrInvalid, c.LOD.Ratio, c.LOD.MergeHysteresis)
	}
	switch c.NormalMap.Rasterizer {
	case "gl", "cpu":
	default:
		return fmt.Errorf("%w: normal_map.rasterizer %q", ErrInvalid, c.NormalMap.Rasterizer)
	}
	if !powerOfTwo(c.NormalMap.Size) {
		return fmt.Errorf("%w: normal_map.size = %d is not a power of two", ErrInvalid, c.NormalMap.Size)
	}
	return nil
}

func powerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
