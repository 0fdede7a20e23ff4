// Package provider loads elevation tiles for quadtree segments.
//
// At most MaxLoadingTiles requests are in flight. Further requests wait on a
// LIFO stack so the tiles asked for last, usually the ones in view, start
// first. Fetches run on their own goroutines and hand results back through
// the frame loop; segments are only touched on the frame goroutine.
package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/engine/loop"
	"github.com/Faultbox/midgard-globe/internal/engine/pending"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/pkg/formats"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

// Segment is the part of a quadtree segment the provider works with.
type Segment interface {
	Key() quadtree.TileKey
	Epoch() uint64
	IsLive() bool
	NodeState() quadtree.State
	TerrainLoading() bool
	BeginTerrainLoad() bool
	CancelTerrainLoad()
	ApplyTerrain(g *formats.Grid)
}

// Options configures a provider.
type Options struct {
	// MaxLoadingTiles caps concurrent fetches.
	MaxLoadingTiles int
	// FileGridSize is the cell count per tile side; payloads are resampled
	// to FileGridSize+1 samples per side. Zero keeps payloads as decoded.
	FileGridSize int
	// Timeout bounds a single fetch. Zero means no limit.
	Timeout time.Duration
}

// Stats are provider counters.
type Stats struct {
	InFlight   int
	Pending    int
	Started    int
	Loaded     int
	Empty      int // resolved without data, failures included
	Dropped    int // results that arrived for stale requests
	Discarded  int // backlog entries skipped on pop
	Generation uint64
}

type request struct {
	seg   Segment
	epoch uint64
}

// Provider implements quadtree.TerrainLoader.
type Provider struct {
	opts    Options
	fetcher Fetcher
	loop    *loop.Loop
	log     *zap.Logger

	counter    int
	backlog    pending.Stack[request]
	generation uint64
	stats      Stats
	onLoadEnd  func()
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a provider that fetches through f and completes on l.
func New(f Fetcher, l *loop.Loop, opts Options, log *zap.Logger) *Provider {
	if opts.MaxLoadingTiles <= 0 {
		opts.MaxLoadingTiles = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		opts:    opts,
		fetcher: f,
		loop:    l,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnLoadEnd registers fn to run when nothing is in flight or waiting.
func (p *Provider) OnLoadEnd(fn func()) {
	p.onLoadEnd = fn
}

// HandleSegmentTerrain satisfies quadtree.TerrainLoader.
func (p *Provider) HandleSegmentTerrain(seg *quadtree.Segment) {
	p.Request(seg)
}

// Request starts or queues an elevation request for seg. Cap segments have
// no elevation source and resolve immediately without data.
func (p *Provider) Request(seg Segment) {
	if p.closed || !seg.BeginTerrainLoad() {
		return
	}
	if seg.Key().Group != geo.GroupMercator {
		seg.ApplyTerrain(nil)
		return
	}

	req := request{seg: seg, epoch: seg.Epoch()}
	if p.counter < p.opts.MaxLoadingTiles {
		p.start(req)
		return
	}
	p.backlog.Push(req)
}

func (p *Provider) start(req request) {
	p.counter++
	p.stats.Started++
	gen := p.generation
	k := req.seg.Key()
	tile := Tile{Zoom: k.Zoom, X: k.X, Y: k.Y}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx := p.ctx
		if p.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
			defer cancel()
		}

		g, err := p.fetcher.Fetch(ctx, tile)
		if err == nil && g != nil && p.opts.FileGridSize > 0 {
			g = g.Resample(p.opts.FileGridSize + 1)
		}
		p.loop.Post(func() { p.complete(req, gen, tile, g, err) })
	}()
}

// complete runs on the frame goroutine.
func (p *Provider) complete(req request, gen uint64, tile Tile, g *formats.Grid, err error) {
	p.counter--
	seg := req.seg
	current := seg.IsLive() && seg.Epoch() == req.epoch

	switch {
	case p.closed:
		p.stats.Dropped++
	case gen != p.generation || !current:
		p.stats.Dropped++
		if current {
			// Aborted: let the tree ask again.
			seg.CancelTerrainLoad()
		}
	case err != nil:
		p.stats.Empty++
		if errors.Is(err, ErrNotFound) {
			p.log.Debug("tile not found", zap.Stringer("tile", tile))
		} else {
			p.log.Warn("tile fetch failed", zap.Stringer("tile", tile), zap.Error(err))
		}
		seg.ApplyTerrain(nil)
	default:
		if g == nil {
			p.stats.Empty++
		} else {
			p.stats.Loaded++
		}
		seg.ApplyTerrain(g)
	}

	if !p.closed {
		p.whilePendings()
	}
	if p.counter == 0 && p.backlog.Len() == 0 && p.onLoadEnd != nil {
		p.onLoadEnd()
	}
}

// whilePendings promotes backlog entries while capacity allows, skipping
// segments that are gone or no longer rendered.
func (p *Provider) whilePendings() {
	for p.counter < p.opts.MaxLoadingTiles {
		req, ok := p.backlog.Pop(p.fresh)
		if !ok {
			return
		}
		p.start(req)
	}
}

func (p *Provider) fresh(req request) bool {
	seg := req.seg
	if seg.IsLive() && seg.Epoch() == req.epoch &&
		seg.TerrainLoading() && seg.NodeState() != quadtree.NotRendering {
		return true
	}
	p.stats.Discarded++
	if seg.IsLive() && seg.Epoch() == req.epoch {
		seg.CancelTerrainLoad()
	}
	return false
}

// Abort clears the backlog and invalidates in-flight requests. Fetches
// already running finish, but their results are not applied.
func (p *Provider) Abort() {
	p.generation++
	p.backlog.Pop(func(req request) bool {
		if req.seg.IsLive() && req.seg.Epoch() == req.epoch {
			req.seg.CancelTerrainLoad()
		}
		return false
	})
	p.log.Debug("terrain requests aborted",
		zap.Uint64("generation", p.generation),
		zap.Int("inFlight", p.counter))
}

// Close aborts, cancels running fetches and waits for their goroutines.
// Their completions still arrive on the loop and are dropped.
func (p *Provider) Close() {
	if p.closed {
		return
	}
	p.Abort()
	p.closed = true
	p.cancel()
	p.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (p *Provider) Stats() Stats {
	s := p.stats
	s.InFlight = p.counter
	s.Pending = p.backlog.Len()
	s.Generation = p.generation
	return s
}
