package planet

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Faultbox/midgard-globe/internal/config"
	"github.com/Faultbox/midgard-globe/internal/engine/provider"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/pkg/formats"
	"github.com/Faultbox/midgard-globe/pkg/geo"
	"github.com/Faultbox/midgard-globe/pkg/math"
)

// fixedCamera sees everything and reports the same projected size for every
// point: zero splits as deep as allowed, a huge size merges to the roots.
type fixedCamera struct{ size float64 }

func (c fixedCamera) Eye() math.Vec3 { return math.Vec3{X: 3 * geo.WGS84.A} }

func (c fixedCamera) ContainsSphere(math.Sphere) bool { return true }

func (c fixedCamera) ProjectedSize(math.Vec3) float64 { return c.size }

func (c fixedCamera) Altitude() float64 { return 2 * geo.WGS84.A }

var (
	near = fixedCamera{size: 0}
	far  = fixedCamera{size: 1e12}
)

func flatGrid(size int, h float32) *formats.Grid {
	g := &formats.Grid{Size: size, Heights: make([]float32, size*size)}
	for i := range g.Heights {
		g.Heights[i] = h
	}
	return g
}

// gatedFetcher answers zoom 0 at once and holds deeper tiles until open is
// closed.
type gatedFetcher struct {
	open  chan struct{}
	calls atomic.Int32
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{open: make(chan struct{})}
}

func (f *gatedFetcher) Fetch(ctx context.Context, t provider.Tile) (*formats.Grid, error) {
	f.calls.Add(1)
	if t.Zoom > 0 {
		select {
		case <-f.open:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return flatGrid(5, 250), nil
}

func testOptions(f provider.Fetcher) Options {
	tree := quadtree.DefaultOptions()
	tree.GridSizeByZoom = []int{8, 8, 8}
	tree.MinZoom = 0
	tree.MaxZoom = 2
	tree.MinTraverseZoom = 0
	tree.FileGridSize = 4
	tree.HorizonCulling = false
	tree.MaxNodes = 0
	tree.MaxRenderedNodes = 100000
	tree.Poles = false

	return Options{
		Tree:          tree,
		Provider:      provider.Options{MaxLoadingTiles: 2, FileGridSize: 4},
		Fetcher:       f,
		IndexMemo:     16,
		NormalMapSize: 8,
		Tolerance:     20,
	}
}

func newTestPlanet(t *testing.T, opts Options) *Planet {
	t.Helper()
	p, err := New(opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// step runs one frame and, when nothing is queued for the next one, waits
// briefly for background work.
func step(t *testing.T, p *Planet, cam quadtree.Camera) {
	t.Helper()
	p.Frame(cam)
	if p.loop.Len() > 0 || p.Idle() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	p.Wait(ctx)
}

// settle runs frames until cond holds.
func settle(t *testing.T, p *Planet, cam quadtree.Camera, cond func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		step(t, p, cam)
		if cond() {
			return
		}
	}
	t.Fatalf("pipeline did not settle: %+v", p.Stats())
}

func leavesDone(p *Planet) bool {
	rendered := p.Rendered()
	if len(rendered) != 16 || !p.Idle() {
		return false
	}
	for _, n := range rendered {
		s := n.Segment()
		if !s.TerrainReady() || !s.NormalMapReady() {
			return false
		}
	}
	return true
}

func TestFramesResolveTerrainAndNormalMaps(t *testing.T) {
	var calls atomic.Int32
	f := provider.FetcherFunc(func(ctx context.Context, tile provider.Tile) (*formats.Grid, error) {
		calls.Add(1)
		return flatGrid(9, 300), nil
	})
	p := newTestPlanet(t, testOptions(f))

	settle(t, p, near, func() bool { return leavesDone(p) })

	for _, n := range p.Rendered() {
		s := n.Segment()
		if s.Zoom != 2 || !s.TerrainExists() {
			t.Errorf("segment %v zoom=%d exists=%v", s.Key(), s.Zoom, s.TerrainExists())
		}
		if _, size := s.NormalMapNormals(); size != 5 {
			t.Errorf("segment %v normals size = %d, want resampled 5", s.Key(), size)
		}
	}
	st := p.Stats()
	if st.Provider.Loaded != 21 || int(calls.Load()) != 21 {
		t.Errorf("loaded = %d, fetches = %d, want 21", st.Provider.Loaded, calls.Load())
	}
	if st.Provider.InFlight != 0 || st.Provider.Pending != 0 {
		t.Errorf("provider not idle: %+v", st.Provider)
	}
	if st.NormalMaps.Built < 16 || st.NormalMaps.Failed != 0 {
		t.Errorf("normal maps = %+v", st.NormalMaps)
	}
	if !st.Online || st.Tree.MaxZoom != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func waitInFlight(t *testing.T, p *Planet, n int) {
	t.Helper()
	settle(t, p, near, func() bool { return p.Stats().Provider.InFlight == n })
}

func TestMergeDropsInFlightTerrain(t *testing.T) {
	f := newGatedFetcher()
	p := newTestPlanet(t, testOptions(f))

	waitInFlight(t, p, 2)
	if st := p.Stats().Provider; st.Pending != 2 || st.Started != 3 {
		t.Fatalf("provider = %+v, want 2 queued behind 2 running", st)
	}

	p.Frame(far)
	if st := p.Stats().Tree; st.Merges != 1 || st.Nodes != 1 || st.Rendered != 1 {
		t.Fatalf("tree = %+v, want the branch merged into the root", st)
	}

	close(f.open)
	settle(t, p, far, func() bool { return p.Idle() })

	st := p.Stats().Provider
	if st.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", st.Dropped)
	}
	if st.Discarded != 2 {
		t.Errorf("discarded = %d, want 2", st.Discarded)
	}
	if st.Started != 3 || st.Loaded != 1 {
		t.Errorf("provider = %+v, want only the root loaded", st)
	}
	root := p.Tree().Roots()[0]
	if root.Segment().NodeState() != quadtree.Rendering {
		t.Errorf("root state = %v", root.Segment().NodeState())
	}
	if c := root.Children(); c[0] != nil {
		t.Error("merged children came back")
	}
}

func TestAbortRequestsAgain(t *testing.T) {
	f := newGatedFetcher()
	p := newTestPlanet(t, testOptions(f))

	waitInFlight(t, p, 2)
	p.Abort()
	st := p.Stats().Provider
	if st.Pending != 0 || st.Generation != 1 {
		t.Fatalf("after abort = %+v", st)
	}

	close(f.open)
	settle(t, p, near, func() bool { return leavesDone(p) })

	st = p.Stats().Provider
	if st.Dropped != 2 {
		t.Errorf("dropped = %d, want the 2 aborted fetches", st.Dropped)
	}
	if st.Loaded != 21 {
		t.Errorf("loaded = %d, want 21", st.Loaded)
	}
}

func TestOfflineResolvesPlain(t *testing.T) {
	opts := testOptions(nil)
	p := newTestPlanet(t, opts)
	if p.Online() {
		t.Fatal("planet without a URL is online")
	}

	settle(t, p, near, func() bool { return leavesDone(p) })
	for _, n := range p.Rendered() {
		if n.Segment().TerrainExists() {
			t.Errorf("segment %v has terrain", n.Segment().Key())
		}
	}
	if st := p.Stats(); st.Online || st.Provider.Started != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSuspendNormalMaps(t *testing.T) {
	f := provider.FetcherFunc(func(ctx context.Context, tile provider.Tile) (*formats.Grid, error) {
		return flatGrid(5, 10), nil
	})
	p := newTestPlanet(t, testOptions(f))

	k := p.SuspendNormalMaps()
	settle(t, p, near, func() bool {
		return p.Idle() && p.Stats().Provider.Loaded == 21
	})
	st := p.Stats().NormalMaps
	if st.Built != 0 || st.Locked == 0 {
		t.Fatalf("while suspended = %+v, want nothing built", st)
	}

	p.ResumeNormalMaps(k)
	settle(t, p, near, func() bool { return leavesDone(p) })
}

func TestTileCacheSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.db")

	online := provider.FetcherFunc(func(ctx context.Context, tile provider.Tile) (*formats.Grid, error) {
		return flatGrid(5, 700), nil
	})
	opts := testOptions(online)
	opts.CachePath = path
	opts.MemoryTiles = 8
	p, err := New(opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	settle(t, p, near, func() bool { return leavesDone(p) })
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var misses atomic.Int32
	offline := provider.FetcherFunc(func(ctx context.Context, tile provider.Tile) (*formats.Grid, error) {
		misses.Add(1)
		return nil, errors.New("network down")
	})
	opts = testOptions(offline)
	opts.CachePath = path
	p = newTestPlanet(t, opts)
	settle(t, p, near, func() bool { return leavesDone(p) })

	if misses.Load() != 0 {
		t.Errorf("cached tiles fetched again %d times", misses.Load())
	}
	for _, n := range p.Rendered() {
		if !n.Segment().TerrainExists() {
			t.Errorf("segment %v lost its cached terrain", n.Segment().Key())
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Terrain.MaxLoadingTiles = 3
	cfg.Cache.Path = "/tmp/tiles.db"
	cfg.LOD.Poles = false

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.Provider.MaxLoadingTiles != 3 || opts.Provider.FileGridSize != cfg.Terrain.FileGridSize {
		t.Errorf("provider options = %+v", opts.Provider)
	}
	if opts.HTTP.URL != cfg.Terrain.URL || opts.HTTP.Format != formats.FormatDDM {
		t.Errorf("http options = %+v", opts.HTTP)
	}
	if opts.Tree.Poles || opts.Tree.MaxZoom != cfg.Terrain.MaxZoom || opts.Tree.RatioLOD != cfg.LOD.Ratio {
		t.Errorf("tree options = %+v", opts.Tree)
	}
	if opts.CachePath != "/tmp/tiles.db" || opts.Tolerance != cfg.NormalMap.Tolerance {
		t.Errorf("options = %+v", opts)
	}

	cfg.Terrain.GridSizeByZoom[0] = 1024
	if opts.Tree.GridSizeByZoom[0] == 1024 {
		t.Error("grid sizes share the config slice")
	}

	cfg.Terrain.Format = "png"
	if _, err := OptionsFromConfig(cfg); !errors.Is(err, formats.ErrUnknownFormat) {
		t.Errorf("unknown format error = %v", err)
	}
}

func TestNewCacheCoversGridSizes(t *testing.T) {
	opts := testOptions(nil)
	opts.Tree.GridSizeByZoom = []int{64, 16}
	cache, err := NewCache(opts, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if got := cache.Tables().MaxGridSize(); got != 64 {
		t.Errorf("max grid size = %d, want 64", got)
	}
}
