// Package normalmap builds per-segment normal map textures.
//
// Builds share one render target, so only one runs at a time. Each build is
// posted to the frame loop and runs on a later turn, never inside the call
// that queued it. Waiting segments sit on LIFO stacks and are checked for
// staleness when popped.
package normalmap

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/internal/engine/loop"
	"github.com/Faultbox/midgard-globe/internal/engine/pending"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
)

// ErrBadNormals is returned for a normal buffer that does not match its grid.
var ErrBadNormals = errors.New("normal buffer does not match grid size")

// Rasterizer turns a grid of unit normals into a texture. size is the
// number of samples per side; normals holds size*size xyz triples laid out
// north to south, west to east.
type Rasterizer interface {
	Rasterize(normals []float32, size int) (quadtree.Texture, error)
}

// Segment is the part of a quadtree segment the creator works with.
type Segment interface {
	Key() quadtree.TileKey
	Epoch() uint64
	IsLive() bool
	NodeState() quadtree.State
	TerrainReady() bool
	NormalMapNormals() ([]float32, int)
	MarkQueued() bool
	Dequeued()
	SetNormalMap(tex quadtree.Texture)
}

// DefaultTolerance is the zoom from which requests pass a held lock.
const DefaultTolerance = 20

// Stats are creator counters.
type Stats struct {
	Building int
	Pending  int
	Built    int
	Failed   int
	Locked   int // requests dropped while the lock was held
	Stale    int // jobs dropped because the segment changed
}

type job struct {
	seg   Segment
	epoch uint64
}

// Creator implements quadtree.NormalMapQueue.
type Creator struct {
	raster    Rasterizer
	loop      *loop.Loop
	lock      *Lock
	tolerance int
	log       *zap.Logger

	counter  int
	queue    pending.Stack[job]
	priority pending.Stack[job]
	stats    Stats
}

// New creates a creator. Requests for zooms below tolerance are dropped
// while the lock is held.
func New(r Rasterizer, l *loop.Loop, lock *Lock, tolerance int, log *zap.Logger) *Creator {
	if lock == nil {
		lock = NewLock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Creator{raster: r, loop: l, lock: lock, tolerance: tolerance, log: log}
}

// Queue satisfies quadtree.NormalMapQueue.
func (c *Creator) Queue(seg *quadtree.Segment) {
	c.Enqueue(seg)
}

// Enqueue requests a normal map for seg.
func (c *Creator) Enqueue(seg Segment) {
	c.add(seg, &c.queue)
}

// Shift requests a normal map ahead of everything queued with Enqueue.
func (c *Creator) Shift(seg Segment) {
	c.add(seg, &c.priority)
}

func (c *Creator) add(seg Segment, lane *pending.Stack[job]) {
	if !c.lock.IsFree() && seg.Key().Zoom < c.tolerance {
		c.stats.Locked++
		return
	}
	if !seg.MarkQueued() {
		return
	}
	j := job{seg: seg, epoch: seg.Epoch()}
	if c.counter >= 1 {
		lane.Push(j)
		return
	}
	c.exec(j)
}

func (c *Creator) exec(j job) {
	c.counter++
	c.loop.Post(func() { c.build(j) })
}

// build runs on the frame goroutine.
func (c *Creator) build(j job) {
	defer func() {
		c.counter--
		c.whilePendings()
	}()

	if !c.fresh(j) {
		c.stats.Stale++
		return
	}

	normals, size := j.seg.NormalMapNormals()
	tex, err := c.raster.Rasterize(normals, size)
	if err != nil {
		c.stats.Failed++
		c.log.Warn("normal map build failed",
			zap.Int("zoom", j.seg.Key().Zoom),
			zap.Int("x", j.seg.Key().X),
			zap.Int("y", j.seg.Key().Y),
			zap.Error(err))
		j.seg.Dequeued()
		return
	}
	j.seg.SetNormalMap(tex)
	c.stats.Built++
}

// fresh reports whether the job may still run. Stale live segments get
// their queue mark back so they can ask again.
func (c *Creator) fresh(j job) bool {
	seg := j.seg
	current := seg.IsLive() && seg.Epoch() == j.epoch
	if current && seg.TerrainReady() && seg.NodeState() != quadtree.NotRendering {
		return true
	}
	if current {
		seg.Dequeued()
	}
	return false
}

func (c *Creator) whilePendings() {
	for c.counter < 1 {
		j, ok := c.priority.Pop(c.keep)
		if !ok {
			j, ok = c.queue.Pop(c.keep)
		}
		if !ok {
			return
		}
		c.exec(j)
	}
}

func (c *Creator) keep(j job) bool {
	if c.fresh(j) {
		return true
	}
	c.stats.Stale++
	return false
}

// Clear drops every waiting request. A build already posted still runs.
func (c *Creator) Clear() {
	drop := func(j job) bool {
		if j.seg.IsLive() && j.seg.Epoch() == j.epoch {
			j.seg.Dequeued()
		}
		return false
	}
	c.priority.Pop(drop)
	c.queue.Pop(drop)
}

// Lock holds k on the creator's lock.
func (c *Creator) Lock(k Key) { c.lock.Lock(k) }

// Free releases k.
func (c *Creator) Free(k Key) { c.lock.Free(k) }

// NewKey allocates a lock key.
func (c *Creator) NewKey() Key { return c.lock.NewKey() }

// Stats returns a snapshot of the counters.
func (c *Creator) Stats() Stats {
	s := c.stats
	s.Building = c.counter
	s.Pending = c.queue.Len() + c.priority.Len()
	return s
}
