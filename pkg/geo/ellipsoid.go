package geo

import (
	gomath "math"

	"github.com/Faultbox/midgard-globe/pkg/math"
)

// Ellipsoid is a reference ellipsoid of revolution. Cartesian coordinates are
// earth-centered: X through lon 0 on the equator, Z through the north pole.
type Ellipsoid struct {
	A, B float64

	e2  float64 // first eccentricity squared
	ep2 float64 // second eccentricity squared
}

// NewEllipsoid creates an ellipsoid from its semi-axes.
func NewEllipsoid(a, b float64) Ellipsoid {
	return Ellipsoid{
		A:   a,
		B:   b,
		e2:  1 - (b*b)/(a*a),
		ep2: (a*a)/(b*b) - 1,
	}
}

// WGS84 is the reference ellipsoid used by the planet.
var WGS84 = NewEllipsoid(6378137.0, 6356752.3142)

// LonLatToCartesian converts geodetic degrees and height in meters to ECEF.
func (e Ellipsoid) LonLatToCartesian(lon, lat, height float64) math.Vec3 {
	lonR := lon * gomath.Pi / 180
	latR := lat * gomath.Pi / 180
	sinLat, cosLat := gomath.Sincos(latR)
	sinLon, cosLon := gomath.Sincos(lonR)

	n := e.A / gomath.Sqrt(1-e.e2*sinLat*sinLat)
	return math.Vec3{
		X: (n + height) * cosLat * cosLon,
		Y: (n + height) * cosLat * sinLon,
		Z: (n*(1-e.e2) + height) * sinLat,
	}
}

// GeodeticNormal returns the unit surface normal at a geodetic position.
func (e Ellipsoid) GeodeticNormal(lon, lat float64) math.Vec3 {
	lonR := lon * gomath.Pi / 180
	latR := lat * gomath.Pi / 180
	sinLat, cosLat := gomath.Sincos(latR)
	sinLon, cosLon := gomath.Sincos(lonR)
	return math.Vec3{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}
}

// CartesianToLonLat converts ECEF to geodetic degrees and height using
// Bowring's single-iteration method.
func (e Ellipsoid) CartesianToLonLat(p math.Vec3) (lon, lat, height float64) {
	r := gomath.Hypot(p.X, p.Y)
	lon = gomath.Atan2(p.Y, p.X) * 180 / gomath.Pi

	if r == 0 {
		if p.Z >= 0 {
			return lon, 90, p.Z - e.B
		}
		return lon, -90, -p.Z - e.B
	}

	theta := gomath.Atan2(p.Z*e.A, r*e.B)
	sinT, cosT := gomath.Sincos(theta)
	latR := gomath.Atan2(p.Z+e.ep2*e.B*sinT*sinT*sinT, r-e.e2*e.A*cosT*cosT*cosT)

	sinLat := gomath.Sin(latR)
	n := e.A / gomath.Sqrt(1-e.e2*sinLat*sinLat)
	height = r/gomath.Cos(latR) - n
	return lon, latR * 180 / gomath.Pi, height
}
