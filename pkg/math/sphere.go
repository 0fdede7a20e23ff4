package math

import "math"

// Sphere is a bounding sphere.
type Sphere struct {
	Center Vec3
	Radius float64
}

// SphereFromPoints returns a sphere centred on the bounding box of points that
// encloses all of them. Points are packed xyz triples.
func SphereFromPoints(xyz []float64) Sphere {
	if len(xyz) < 3 {
		return Sphere{}
	}

	minV := Vec3{xyz[0], xyz[1], xyz[2]}
	maxV := minV
	for i := 3; i+2 < len(xyz); i += 3 {
		minV.X = min(minV.X, xyz[i])
		minV.Y = min(minV.Y, xyz[i+1])
		minV.Z = min(minV.Z, xyz[i+2])
		maxV.X = max(maxV.X, xyz[i])
		maxV.Y = max(maxV.Y, xyz[i+1])
		maxV.Z = max(maxV.Z, xyz[i+2])
	}

	center := minV.Lerp(maxV, 0.5)
	var r2 float64
	for i := 0; i+2 < len(xyz); i += 3 {
		d := Vec3{xyz[i], xyz[i+1], xyz[i+2]}.Sub(center).Length2()
		r2 = max(r2, d)
	}

	return Sphere{Center: center, Radius: math.Sqrt(r2)}
}

// Contains reports whether p lies inside or on the sphere.
func (s Sphere) Contains(p Vec3) bool {
	return p.Sub(s.Center).Length2() <= s.Radius*s.Radius
}
