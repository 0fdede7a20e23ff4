package terrain

import (
	"errors"
	"testing"
)

// signedArea returns twice the signed area of a triangle in grid coordinates.
func signedArea(t [3]uint32, size int) int {
	x := func(v uint32) int { return int(v) % size }
	y := func(v uint32) int { return int(v) / size }
	return (x(t[1])-x(t[0]))*(y(t[2])-y(t[0])) - (x(t[2])-x(t[0]))*(y(t[1])-y(t[0]))
}

// checkTriangulation verifies that tris cover the d x d grid exactly once with a
// consistent winding.
func checkTriangulation(t *testing.T, tris [][3]uint32, d int) {
	t.Helper()
	size := d + 1

	seen := make(map[[3]uint32]bool)
	var area2 int
	var positive, negative int
	for _, tri := range tris {
		a := signedArea(tri, size)
		switch {
		case a > 0:
			positive++
			area2 += a
		case a < 0:
			negative++
			area2 -= a
		default:
			t.Errorf("zero-area triangle %v", tri)
		}

		key := sortTri(tri)
		if seen[key] {
			t.Errorf("duplicate triangle %v", tri)
		}
		seen[key] = true
	}

	if area2 != 2*d*d {
		t.Errorf("covered area %v, want %d", float64(area2)/2, d*d)
	}
	if positive > 0 && negative > 0 {
		t.Errorf("mixed winding: %d positive, %d negative", positive, negative)
	}
}

func sortTri(t [3]uint32) [3]uint32 {
	if t[0] > t[1] {
		t[0], t[1] = t[1], t[0]
	}
	if t[1] > t[2] {
		t[1], t[2] = t[2], t[1]
	}
	if t[0] > t[1] {
		t[0], t[1] = t[1], t[0]
	}
	return t
}

func TestCenterIndexesInRange(t *testing.T) {
	tables := Build(6)
	for p := 0; p <= 6; p++ {
		d := 1 << p
		c, err := tables.Center(d)
		if err != nil {
			t.Fatalf("Center(%d): %v", d, err)
		}
		limit := uint32((d + 1) * (d + 1))
		for _, v := range c {
			if v >= limit {
				t.Errorf("d=%d: index %d out of range", d, v)
			}
		}
	}
}

func TestCenterIndexesSkipOuterRing(t *testing.T) {
	tables := Build(5)
	for p := 2; p <= 5; p++ {
		d := 1 << p
		size := d + 1
		c, _ := tables.Center(d)
		for _, tri := range Triangles(c) {
			for _, v := range tri {
				i, j := int(v)/size, int(v)%size
				if i == 0 || j == 0 || i == d || j == d {
					t.Errorf("d=%d: interior triangle %v touches the border", d, tri)
				}
			}
		}
		// Interior of a (d-2) x (d-2) block.
		if got, want := len(Triangles(c)), 2*(d-2)*(d-2); got != want {
			t.Errorf("d=%d: %d interior triangles, want %d", d, got, want)
		}
	}
}

func TestSegmentIndexesEqualNeighbors(t *testing.T) {
	tables := Build(6)
	for p := 0; p <= 6; p++ {
		d := 1 << p
		strip, err := tables.SegmentIndexes(d, d, d, d, d)
		if err != nil {
			t.Fatalf("SegmentIndexes(%d): %v", d, err)
		}
		tris := Triangles(strip)
		if len(tris) != 2*d*d {
			t.Errorf("d=%d: %d triangles, want %d", d, len(tris), 2*d*d)
		}
		checkTriangulation(t, tris, d)

		used := make(map[uint32]bool)
		for _, tri := range tris {
			for _, v := range tri {
				used[v] = true
			}
		}
		if len(used) != (d+1)*(d+1) {
			t.Errorf("d=%d: %d vertices referenced, want %d", d, len(used), (d+1)*(d+1))
		}
	}
}

func TestSingleQuad(t *testing.T) {
	tables := Build(3)
	strip, err := tables.SegmentIndexes(1, 1, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0, 2, 1, 3}
	if len(strip) != len(want) {
		t.Fatalf("got %v, want %v", strip, want)
	}
	for i := range want {
		if strip[i] != want[i] {
			t.Errorf("got %v, want %v", strip, want)
			break
		}
	}
}

func TestSkirtMismatchTriangulation(t *testing.T) {
	tables := Build(6)
	for p := 1; p <= 6; p++ {
		d := 1 << p
		for np := 0; np <= p; np++ {
			nd := 1 << np
			cases := [][4]int{
				{nd, d, d, d},
				{d, nd, d, d},
				{d, d, nd, d},
				{d, d, d, nd},
				{nd, nd, nd, nd},
			}
			for _, c := range cases {
				strip, err := tables.SegmentIndexes(d, c[0], c[1], c[2], c[3])
				if err != nil {
					t.Fatalf("SegmentIndexes(%d, %v): %v", d, c, err)
				}
				checkTriangulation(t, Triangles(strip), d)
			}
		}
	}
}

func TestSkirtNoCracks(t *testing.T) {
	tables := Build(5)
	d := 32
	size := d + 1
	for np := 0; np <= 5; np++ {
		nd := 1 << np
		step := d / nd

		// Coarser neighbor on the north edge only.
		strip, _ := tables.SegmentIndexes(d, nd, d, d, d)
		used := make(map[uint32]bool)
		for _, tri := range Triangles(strip) {
			for _, v := range tri {
				used[v] = true
			}
		}

		for j := 0; j <= d; j++ {
			outer := uint32(j)
			if j%step == 0 && !used[outer] {
				t.Errorf("nd=%d: shared north vertex %d unused", nd, j)
			}
			if j%step != 0 && used[outer] {
				t.Errorf("nd=%d: north vertex %d would form a T-junction", nd, j)
			}
		}
		// Every vertex of the next row still belongs to a triangle.
		for j := 0; j <= d; j++ {
			if v := uint32(size + j); !used[v] {
				t.Errorf("nd=%d: inner vertex %d orphaned", nd, v)
			}
		}
	}
}

func TestSkirtTriangleCounts(t *testing.T) {
	tables := Build(6)
	edgeTris := func(d, nd int) int {
		base, _ := tables.SegmentIndexes(d, d, d, d, d)
		mixed, _ := tables.SegmentIndexes(d, d, nd, d, d)
		return len(Triangles(mixed)) - len(Triangles(base)) + 2*d - 2
	}

	tests := []struct {
		d, nd int
		want  int
	}{
		{32, 32, 62},
		{32, 16, 46},
		{32, 1, 31},
		{64, 32, 94},
		{4, 2, 4},
	}
	for _, tt := range tests {
		if got := edgeTris(tt.d, tt.nd); got != tt.want {
			t.Errorf("edge triangles d=%d nd=%d: %d, want %d", tt.d, tt.nd, got, tt.want)
		}
	}
}

func TestUnsupportedSize(t *testing.T) {
	tables := Build(4)
	if _, err := tables.Center(3); !errors.Is(err, ErrUnsupportedSize) {
		t.Errorf("Center(3): expected ErrUnsupportedSize, got %v", err)
	}
	if _, err := tables.Center(32); !errors.Is(err, ErrUnsupportedSize) {
		t.Errorf("Center(32): expected ErrUnsupportedSize, got %v", err)
	}
	if _, err := tables.SegmentIndexes(16, 16, 12, 16, 16); !errors.Is(err, ErrUnsupportedSize) {
		t.Errorf("bad neighbor: expected ErrUnsupportedSize, got %v", err)
	}
}

func TestFinerNeighborClamped(t *testing.T) {
	tables := Build(6)
	a, _ := tables.SegmentIndexes(16, 64, 16, 16, 32)
	b, _ := tables.SegmentIndexes(16, 16, 16, 16, 16)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d differs", i)
		}
	}
}

func TestTexCoords(t *testing.T) {
	tables := Build(3)
	tc, err := tables.TexCoords(8)
	if err != nil {
		t.Fatal(err)
	}
	if len(tc) != 9*9*2 {
		t.Fatalf("got %d coords, want %d", len(tc), 9*9*2)
	}
	// Last vertex is the south-east corner.
	if tc[len(tc)-2] != 1 || tc[len(tc)-1] != 1 {
		t.Errorf("last coord = (%v,%v), want (1,1)", tc[len(tc)-2], tc[len(tc)-1])
	}
	// Vertex (row 2, col 4).
	k := (2*9 + 4) * 2
	if tc[k] != 0.5 || tc[k+1] != 0.25 {
		t.Errorf("coord = (%v,%v), want (0.5,0.25)", tc[k], tc[k+1])
	}
}

func TestCache(t *testing.T) {
	c, err := NewCache(4, 8, nil)
	if err != nil {
		t.Fatal(err)
	}

	if c.EnsureGridSize(8) {
		t.Error("EnsureGridSize(8) rebuilt tables that already cover it")
	}
	old := c.Tables()
	if !c.EnsureGridSize(64) {
		t.Error("EnsureGridSize(64) did not rebuild")
	}
	if c.Tables() == old {
		t.Error("rebuild should publish new tables")
	}
	if c.Tables().MaxGridSize() != 64 {
		t.Errorf("MaxGridSize = %d, want 64", c.Tables().MaxGridSize())
	}

	k := Key{32, 16, 32, 32, 32}
	a, err := c.SegmentIndexes(k)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.SegmentIndexes(k)
	if &a[0] != &b[0] {
		t.Error("second lookup should hit the memo")
	}
}
