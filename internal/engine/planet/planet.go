// Package planet assembles the terrain pipeline: index tables, the LOD tree,
// the elevation provider and the normal map creator, all driven from one
// frame loop.
package planet

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/config"
	"github.com/Faultbox/midgard-globe/internal/engine/loop"
	"github.com/Faultbox/midgard-globe/internal/engine/normalmap"
	"github.com/Faultbox/midgard-globe/internal/engine/provider"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
	"github.com/Faultbox/midgard-globe/pkg/formats"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

// Options configures a planet.
type Options struct {
	Tree     quadtree.Options
	Provider provider.Options
	// HTTP is used when Fetcher is nil. An empty URL means no elevation
	// source: every segment resolves to the plain ellipsoid.
	HTTP    provider.HTTPOptions
	Fetcher provider.Fetcher

	MemoryTiles int
	// CachePath enables the persistent tile cache.
	CachePath string
	IndexMemo int

	NormalMapSize int
	NormalMapBlur int
	Tolerance     int

	// Cache is created from the tree grid sizes when nil.
	Cache *terrain.Cache
	// Rasterizer defaults to a CPURasterizer over Cache.
	Rasterizer normalmap.Rasterizer
}

// OptionsFromConfig maps the user config onto pipeline options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	format, err := formats.ParseFormat(cfg.Terrain.Format)
	if err != nil {
		return Options{}, err
	}

	tree := quadtree.DefaultOptions()
	tree.RatioLOD = cfg.LOD.Ratio
	tree.MergeHysteresis = cfg.LOD.MergeHysteresis
	tree.MinZoom = cfg.Terrain.MinZoom
	tree.MaxZoom = cfg.Terrain.MaxZoom
	tree.GridSizeByZoom = append([]int(nil), cfg.Terrain.GridSizeByZoom...)
	tree.FileGridSize = cfg.Terrain.FileGridSize
	tree.HeightFactor = cfg.Terrain.HeightFactor
	tree.MaxNodes = cfg.LOD.MaxNodes
	tree.MaxRenderedNodes = cfg.LOD.MaxRenderedNodes
	tree.HorizonCulling = cfg.LOD.HorizonCulling
	tree.Poles = cfg.LOD.Poles
	tree.Ellipsoid = geo.WGS84

	return Options{
		Tree: tree,
		Provider: provider.Options{
			MaxLoadingTiles: cfg.Terrain.MaxLoadingTiles,
			FileGridSize:    cfg.Terrain.FileGridSize,
			Timeout:         cfg.Terrain.Timeout,
		},
		HTTP: provider.HTTPOptions{
			URL:        cfg.Terrain.URL,
			Subdomains: cfg.Terrain.Subdomains,
			Format:     format,
			FailureTTL: cfg.Cache.FailureTTL,
		},
		MemoryTiles:   cfg.Cache.MemoryTiles,
		CachePath:     cfg.Cache.Path,
		IndexMemo:     cfg.Cache.IndexMemo,
		NormalMapSize: cfg.NormalMap.Size,
		NormalMapBlur: cfg.NormalMap.Blur,
		Tolerance:     cfg.NormalMap.Tolerance,
	}, nil
}

// NewCache creates index tables large enough for every grid size in opts.
func NewCache(opts Options, log *zap.Logger) (*terrain.Cache, error) {
	largest := max(opts.Tree.FileGridSize, 1)
	for _, gs := range opts.Tree.GridSizeByZoom {
		largest = max(largest, gs)
	}
	return terrain.NewCache(bits.Len(uint(largest-1)), opts.IndexMemo, log)
}

// Stats combines the per-stage counters.
type Stats struct {
	Tree       quadtree.Stats
	Provider   provider.Stats
	NormalMaps normalmap.Stats
	Tasks      int // loop tasks waiting for the next frame
	Online     bool
}

// Planet owns the pipeline. Every method except Wait must be called from
// the frame goroutine.
type Planet struct {
	opts     Options
	log      *zap.Logger
	loop     *loop.Loop
	cache    *terrain.Cache
	tree     *quadtree.Tree
	provider *provider.Provider
	creator  *normalmap.Creator
	lock     *normalmap.Lock
	http     *provider.HTTPFetcher
	bolt     *provider.BoltCache
}

// New builds the pipeline.
func New(opts Options, log *zap.Logger) (*Planet, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Planet{opts: opts, log: log, loop: loop.New(), lock: normalmap.NewLock()}

	p.cache = opts.Cache
	if p.cache == nil {
		var err error
		if p.cache, err = NewCache(opts, log.Named("terrain")); err != nil {
			return nil, err
		}
	}
	p.cache.EnsureGridSize(opts.Tree.FileGridSize)

	fetcher, err := p.fetcher()
	if err != nil {
		return nil, err
	}
	var loader quadtree.TerrainLoader
	if fetcher != nil {
		p.provider = provider.New(fetcher, p.loop, opts.Provider, log.Named("provider"))
		p.provider.OnLoadEnd(p.loadEnd)
		loader = p.provider
	}

	r := opts.Rasterizer
	if r == nil {
		r = normalmap.NewCPURasterizer(p.cache, opts.NormalMapSize, opts.NormalMapBlur)
	}
	p.creator = normalmap.New(r, p.loop, p.lock, opts.Tolerance, log.Named("normalmap"))

	p.tree, err = quadtree.New(opts.Tree, p.cache, loader, p.creator, log.Named("quadtree"))
	if err != nil {
		p.closeSources()
		return nil, fmt.Errorf("creating quadtree: %w", err)
	}

	log.Info("planet created",
		zap.Bool("online", loader != nil),
		zap.Int("minZoom", opts.Tree.MinZoom),
		zap.Int("maxZoom", opts.Tree.MaxZoom),
		zap.Bool("poles", opts.Tree.Poles),
		zap.String("cache", opts.CachePath))
	return p, nil
}

// fetcher builds the fetch chain: memory over the optional bolt file over
// the network. It returns nil when there is no elevation source.
func (p *Planet) fetcher() (provider.Fetcher, error) {
	f := p.opts.Fetcher
	if f == nil {
		if p.opts.HTTP.URL == "" {
			return nil, nil
		}
		p.http = provider.NewHTTPFetcher(p.opts.HTTP, p.log.Named("http"))
		f = p.http
	}
	if p.opts.CachePath != "" {
		bc, err := provider.OpenBoltCache(p.opts.CachePath, f, p.log.Named("bolt"))
		if err != nil {
			return nil, err
		}
		p.bolt = bc
		f = bc
	}
	if p.opts.MemoryTiles > 0 {
		mc, err := provider.NewMemoryCache(f, p.opts.MemoryTiles)
		if err != nil {
			p.closeSources()
			return nil, err
		}
		f = mc
	}
	return f, nil
}

func (p *Planet) loadEnd() {
	s := p.provider.Stats()
	p.log.Debug("terrain idle",
		zap.Int("loaded", s.Loaded),
		zap.Int("empty", s.Empty),
		zap.Int("dropped", s.Dropped))
}

// Frame completes background work posted since the previous frame, then
// selects the rendered set for cam.
func (p *Planet) Frame(cam quadtree.Camera) {
	p.loop.RunPending()
	p.tree.Frame(cam)
}

// Rendered returns the nodes selected by the last Frame.
func (p *Planet) Rendered() []*quadtree.Node { return p.tree.Rendered() }

// Tree returns the LOD tree.
func (p *Planet) Tree() *quadtree.Tree { return p.tree }

// Cache returns the index tables shared with the renderer.
func (p *Planet) Cache() *terrain.Cache { return p.cache }

// Online reports whether segments request elevation data.
func (p *Planet) Online() bool { return p.provider != nil }

// Idle reports whether no fetch, build or loop task is outstanding.
func (p *Planet) Idle() bool {
	if p.loop.Len() > 0 {
		return false
	}
	if p.provider != nil {
		if s := p.provider.Stats(); s.InFlight > 0 || s.Pending > 0 {
			return false
		}
	}
	s := p.creator.Stats()
	return s.Building == 0 && s.Pending == 0
}

// Wait blocks until background work has posted a result or ctx is done.
// Safe to call from the frame goroutine between frames.
func (p *Planet) Wait(ctx context.Context) error {
	return p.loop.Wait(ctx)
}

// SuspendNormalMaps holds the normal map lock, so shallow segments stop
// queuing builds, for instance while the camera flies. Pass the key to
// ResumeNormalMaps.
func (p *Planet) SuspendNormalMaps() normalmap.Key {
	k := p.lock.NewKey()
	p.lock.Lock(k)
	return k
}

// ResumeNormalMaps releases a key from SuspendNormalMaps.
func (p *Planet) ResumeNormalMaps(k normalmap.Key) {
	p.lock.Free(k)
}

// Abort drops queued terrain requests and normal map builds. Segments that
// are still rendered ask again on the next frame.
func (p *Planet) Abort() {
	if p.provider != nil {
		p.provider.Abort()
	}
	p.creator.Clear()
}

// ForgetFailures lets tiles that failed to download be requested again.
func (p *Planet) ForgetFailures() {
	if p.http != nil {
		p.http.Forget()
	}
}

// Stats returns a snapshot of every stage.
func (p *Planet) Stats() Stats {
	s := Stats{
		Tree:       p.tree.Stats(),
		NormalMaps: p.creator.Stats(),
		Tasks:      p.loop.Len(),
		Online:     p.provider != nil,
	}
	if p.provider != nil {
		s.Provider = p.provider.Stats()
	}
	return s
}

// Close stops fetching, releases every segment and closes the tile cache.
func (p *Planet) Close() error {
	if p.provider != nil {
		p.provider.Close()
	}
	p.creator.Clear()
	// Completions posted by the stopped fetches are dropped here.
	p.loop.Drain(context.Background())
	p.tree.Clear()
	for _, r := range p.tree.Roots() {
		r.Segment().SetNormalMap(nil)
	}
	return p.closeSources()
}

func (p *Planet) closeSources() error {
	var errs []error
	if p.bolt != nil {
		if err := p.bolt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing tile cache: %w", err))
		}
		p.bolt = nil
	}
	return errors.Join(errs...)
}
