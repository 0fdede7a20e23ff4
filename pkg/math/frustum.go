package math

import "math"

// Plane is n·p + D = 0 with a unit normal pointing into the kept half-space.
type Plane struct {
	Normal Vec3
	D      float64
}

// NewPlane builds a plane through point with the given inward normal.
func NewPlane(normal, point Vec3) Plane {
	n := normal.Normalize()
	return Plane{Normal: n, D: -n.Dot(point)}
}

// Distance returns the signed distance of p from the plane.
func (pl Plane) Distance(p Vec3) float64 {
	return pl.Normal.Dot(p) + pl.D
}

// Frustum is a view volume made of six inward-facing planes.
type Frustum struct {
	Planes [6]Plane
}

// NewFrustum builds a frustum from a right-handed camera basis
// (right = forward × up, all unit length). fovY is the vertical field of view in radians.
func NewFrustum(eye, forward, right, up Vec3, fovY, aspect, near, far float64) Frustum {
	tanY := math.Tan(fovY / 2)
	tanX := tanY * aspect

	// Side plane normals are the cross products of the frustum edges.
	leftN := forward.Sub(right.Scale(tanX)).Cross(up)
	rightN := up.Cross(forward.Add(right.Scale(tanX)))
	bottomN := right.Cross(forward.Sub(up.Scale(tanY)))
	topN := forward.Add(up.Scale(tanY)).Cross(right)

	return Frustum{Planes: [6]Plane{
		NewPlane(forward, eye.Add(forward.Scale(near))),
		NewPlane(forward.Scale(-1), eye.Add(forward.Scale(far))),
		NewPlane(leftN, eye),
		NewPlane(rightN, eye),
		NewPlane(bottomN, eye),
		NewPlane(topN, eye),
	}}
}

// ContainsSphere reports whether the sphere intersects the frustum.
func (f Frustum) ContainsSphere(s Sphere) bool {
	for _, p := range f.Planes {
		if p.Distance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}
