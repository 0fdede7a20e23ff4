package math

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	got := x.Cross(y)
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestVec3Normalize(t *testing.T) {
	v := Vec3{3, 4, 12}
	if l := v.Length(); l != 13 {
		t.Errorf("Vec3.Length() = %v, want 13", l)
	}
	n := v.Normalize()
	if !almostEqual(n.Length(), 1, 1e-12) {
		t.Errorf("Vec3.Normalize().Length() = %v, want 1", n.Length())
	}
	if (Vec3{}).Normalize() != (Vec3{}) {
		t.Error("zero vector should normalize to zero")
	}
}

func TestVec3Lerp(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{10, -10, 4}
	got := a.Lerp(b, 0.5)
	want := Vec3{5, -5, 2}
	if got != want {
		t.Errorf("Lerp() = %v, want %v", got, want)
	}
}

func TestSphereFromPoints(t *testing.T) {
	pts := []float64{
		-1, 0, 0,
		1, 0, 0,
		0, 2, 0,
		0, -2, 0,
	}
	s := SphereFromPoints(pts)
	if s.Center != (Vec3{0, 0, 0}) {
		t.Errorf("center = %v, want origin", s.Center)
	}
	if !almostEqual(s.Radius, 2, 1e-12) {
		t.Errorf("radius = %v, want 2", s.Radius)
	}
	for i := 0; i < len(pts); i += 3 {
		p := Vec3{pts[i], pts[i+1], pts[i+2]}
		if !s.Contains(p) {
			t.Errorf("sphere does not contain %v", p)
		}
	}
	if s.Contains(Vec3{3, 0, 0}) {
		t.Error("sphere should not contain (3,0,0)")
	}

	if got := SphereFromPoints(nil); got != (Sphere{}) {
		t.Errorf("empty input = %v, want zero sphere", got)
	}
}

func TestPerspective(t *testing.T) {
	m := Perspective(math.Pi/2, 1, 1, 100)

	// A point on the near plane centre maps to z = -1 in NDC.
	p := m.TransformPoint([3]float32{0, 0, -1})
	if !almostEqual(float64(p[2]), -1, 1e-5) {
		t.Errorf("near plane z = %v, want -1", p[2])
	}
	p = m.TransformPoint([3]float32{0, 0, -100})
	if !almostEqual(float64(p[2]), 1, 1e-4) {
		t.Errorf("far plane z = %v, want 1", p[2])
	}
	// 90 degree fov: x == -z lands on the right edge.
	p = m.TransformPoint([3]float32{10, 0, -10})
	if !almostEqual(float64(p[0]), 1, 1e-5) {
		t.Errorf("right edge x = %v, want 1", p[0])
	}
}

func TestLookAtMul(t *testing.T) {
	view := LookAt(Vec3{0, 0, 10}, Vec3{}, Vec3{0, 1, 0})
	p := view.TransformPoint([3]float32{0, 0, 0})
	if p != [3]float32{0, 0, -10} {
		t.Errorf("origin in view space = %v, want (0,0,-10)", p)
	}

	id := Identity()
	if got := view.Mul(id); got != view {
		t.Errorf("view * identity != view")
	}
}

func TestFrustumContainsSphere(t *testing.T) {
	f := NewFrustum(
		Vec3{},
		Vec3{0, 0, -1},
		Vec3{1, 0, 0},
		Vec3{0, 1, 0},
		math.Pi/2, 1, 1, 100,
	)

	tests := []struct {
		name string
		s    Sphere
		want bool
	}{
		{"ahead", Sphere{Vec3{0, 0, -50}, 1}, true},
		{"behind", Sphere{Vec3{0, 0, 50}, 1}, false},
		{"beyond far", Sphere{Vec3{0, 0, -200}, 10}, false},
		{"far left", Sphere{Vec3{-100, 0, -10}, 1}, false},
		{"far right", Sphere{Vec3{100, 0, -10}, 1}, false},
		{"above", Sphere{Vec3{0, 100, -10}, 1}, false},
		{"below", Sphere{Vec3{0, -100, -10}, 1}, false},
		{"straddles left edge", Sphere{Vec3{-12, 0, -10}, 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ContainsSphere(tt.s); got != tt.want {
				t.Errorf("ContainsSphere() = %v, want %v", got, tt.want)
			}
		})
	}
}
