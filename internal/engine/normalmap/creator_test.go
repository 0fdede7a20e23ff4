package normalmap

import (
	"errors"
	"testing"

	"github.com/Faultbox/midgard-globe/internal/engine/loop"
	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

type fakeSegment struct {
	key    quadtree.TileKey
	epoch  uint64
	live   bool
	state  quadtree.State
	ready  bool
	queued bool

	tex quadtree.Texture
}

func newFakeSegment(zoom, x int) *fakeSegment {
	return &fakeSegment{
		key:   quadtree.TileKey{Group: geo.GroupMercator, Zoom: zoom, X: x},
		live:  true,
		state: quadtree.Rendering,
		ready: true,
	}
}

func (s *fakeSegment) Key() quadtree.TileKey { return s.key }

func (s *fakeSegment) Epoch() uint64 { return s.epoch }

func (s *fakeSegment) IsLive() bool { return s.live }

func (s *fakeSegment) NodeState() quadtree.State { return s.state }

func (s *fakeSegment) TerrainReady() bool { return s.ready }

func (s *fakeSegment) NormalMapNormals() ([]float32, int) {
	return make([]float32, 2*2*3), 2
}

func (s *fakeSegment) MarkQueued() bool {
	if s.queued {
		return false
	}
	s.queued = true
	return true
}

func (s *fakeSegment) Dequeued() { s.queued = false }

func (s *fakeSegment) SetNormalMap(tex quadtree.Texture) {
	s.queued = false
	s.tex = tex
}

func (s *fakeSegment) release() {
	s.live = false
	s.epoch++
	s.queued = false
}

type testTexture struct{ order int }

func (testTexture) Release() {}

// recordingRasterizer numbers its builds.
type recordingRasterizer struct {
	builds int
	err    error
}

func (r *recordingRasterizer) Rasterize(normals []float32, size int) (quadtree.Texture, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.builds++
	return testTexture{order: r.builds}, nil
}

func builtOrder(s *fakeSegment) int {
	if tex, ok := s.tex.(testTexture); ok {
		return tex.order
	}
	return 0
}

func TestCreatorRunsOneBuildPerTurn(t *testing.T) {
	r := &recordingRasterizer{}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	a, b, d := newFakeSegment(5, 0), newFakeSegment(5, 1), newFakeSegment(5, 2)
	c.Enqueue(a)
	c.Enqueue(b)
	c.Enqueue(d)

	if r.builds != 0 {
		t.Fatal("build ran inside Enqueue")
	}
	if st := c.Stats(); st.Building != 1 || st.Pending != 2 {
		t.Fatalf("building %d pending %d, want 1 and 2", st.Building, st.Pending)
	}

	for turn := 1; turn <= 3; turn++ {
		if n := l.RunPending(); n != 1 {
			t.Fatalf("turn %d ran %d tasks, want 1", turn, n)
		}
		if r.builds != turn {
			t.Fatalf("turn %d: %d builds", turn, r.builds)
		}
	}
	if l.Len() != 0 {
		t.Error("work left after every segment was built")
	}

	// Most recent request first.
	if builtOrder(a) != 1 || builtOrder(d) != 2 || builtOrder(b) != 3 {
		t.Errorf("build order a=%d b=%d d=%d, want 1 3 2", builtOrder(a), builtOrder(b), builtOrder(d))
	}
	for _, s := range []*fakeSegment{a, b, d} {
		if s.queued {
			t.Errorf("segment %v still queued", s.key)
		}
	}
	if c.Stats().Built != 3 {
		t.Errorf("built = %d, want 3", c.Stats().Built)
	}
}

func TestCreatorQueueIsIdempotent(t *testing.T) {
	r := &recordingRasterizer{}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	first, s := newFakeSegment(5, 0), newFakeSegment(5, 1)
	c.Enqueue(first)
	c.Enqueue(s)
	c.Enqueue(s)
	if c.Stats().Pending != 1 {
		t.Errorf("pending = %d, want 1", c.Stats().Pending)
	}
}

func TestCreatorLockDropsShallowRequests(t *testing.T) {
	tests := []struct {
		name   string
		zoom   int
		held   bool
		queued bool
	}{
		{"free lock", 5, false, true},
		{"held lock shallow", 5, true, false},
		{"held lock at tolerance", DefaultTolerance, true, true},
		{"held lock deep", DefaultTolerance + 2, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := loop.New()
			c := New(&recordingRasterizer{}, l, nil, DefaultTolerance, nil)
			k := c.NewKey()
			if tt.held {
				c.Lock(k)
			}

			s := newFakeSegment(tt.zoom, 0)
			c.Enqueue(s)
			if s.queued != tt.queued {
				t.Errorf("queued = %v, want %v", s.queued, tt.queued)
			}
			if got := l.Len() == 1; got != tt.queued {
				t.Errorf("build posted = %v, want %v", got, tt.queued)
			}

			c.Free(k)
			if !tt.queued {
				if c.Stats().Locked != 1 {
					t.Errorf("locked = %d, want 1", c.Stats().Locked)
				}
				c.Enqueue(s)
				if !s.queued {
					t.Error("request refused after the lock was freed")
				}
			}
		})
	}
}

func TestCreatorDropsStaleJobs(t *testing.T) {
	r := &recordingRasterizer{}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	running := newFakeSegment(5, 0)
	merged := newFakeSegment(5, 1)
	hidden := newFakeSegment(5, 2)
	c.Enqueue(running)
	c.Enqueue(merged)
	c.Enqueue(hidden)

	merged.release()
	hidden.state = quadtree.NotRendering

	l.RunPending()
	if l.Len() != 0 {
		t.Error("stale job promoted")
	}
	if r.builds != 1 {
		t.Errorf("builds = %d, want 1", r.builds)
	}
	if hidden.queued {
		t.Error("hidden segment kept its queue mark")
	}
	if st := c.Stats(); st.Stale != 2 || st.Pending != 0 || st.Building != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCreatorDropsJobReleasedBeforeBuild(t *testing.T) {
	r := &recordingRasterizer{}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	s := newFakeSegment(5, 0)
	c.Enqueue(s)
	s.release()
	l.RunPending()

	if r.builds != 0 || s.tex != nil {
		t.Error("built a normal map for a released segment")
	}
}

func TestCreatorShiftRunsFirst(t *testing.T) {
	r := &recordingRasterizer{}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	busy, normal, urgent := newFakeSegment(5, 0), newFakeSegment(5, 1), newFakeSegment(5, 2)
	c.Enqueue(busy)
	c.Shift(urgent)
	c.Enqueue(normal)

	l.RunPending()
	l.RunPending()
	if builtOrder(urgent) != 2 {
		t.Errorf("shifted segment built at %d, want 2", builtOrder(urgent))
	}
	l.RunPending()
	if builtOrder(normal) != 3 {
		t.Errorf("queued segment built at %d, want 3", builtOrder(normal))
	}
}

func TestCreatorClear(t *testing.T) {
	r := &recordingRasterizer{}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	busy, a, b := newFakeSegment(5, 0), newFakeSegment(5, 1), newFakeSegment(5, 2)
	c.Enqueue(busy)
	c.Enqueue(a)
	c.Shift(b)
	c.Clear()

	if c.Stats().Pending != 0 {
		t.Error("Clear left waiting jobs")
	}
	if a.queued || b.queued {
		t.Error("cleared segments kept their queue mark")
	}

	l.RunPending()
	if builtOrder(busy) != 1 || r.builds != 1 {
		t.Error("posted build did not run after Clear")
	}
}

func TestCreatorBuildFailure(t *testing.T) {
	r := &recordingRasterizer{err: errors.New("no target")}
	l := loop.New()
	c := New(r, l, nil, DefaultTolerance, nil)

	a, b := newFakeSegment(5, 0), newFakeSegment(5, 1)
	c.Enqueue(a)
	c.Enqueue(b)
	l.RunPending()

	if a.queued || a.tex != nil {
		t.Error("failed segment still queued or textured")
	}
	if c.Stats().Failed != 1 {
		t.Errorf("failed = %d, want 1", c.Stats().Failed)
	}
	if l.Len() != 1 {
		t.Error("next job not promoted after a failure")
	}
}
