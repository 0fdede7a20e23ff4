// Package lighting provides light directions for the globe shader.
package lighting

import (
	gomath "math"
	"time"

	"github.com/Faultbox/midgard-globe/pkg/math"
)

const deg = gomath.Pi / 180

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// SubSolarPoint returns the longitude and latitude in degrees where the sun
// is at zenith at t. Low precision almanac formulas, good to a fraction of a
// degree for years near 2000.
func SubSolarPoint(t time.Time) (lon, lat float64) {
	d := t.UTC().Sub(j2000).Hours() / 24

	meanLon := 280.460 + 0.9856474*d
	anomaly := (357.528 + 0.9856003*d) * deg
	eclLon := (meanLon + 1.915*gomath.Sin(anomaly) + 0.020*gomath.Sin(2*anomaly)) * deg
	obliquity := (23.439 - 0.0000004*d) * deg

	ra := gomath.Atan2(gomath.Cos(obliquity)*gomath.Sin(eclLon), gomath.Cos(eclLon))
	dec := gomath.Asin(gomath.Sin(obliquity) * gomath.Sin(eclLon))
	gmst := 280.46061837 + 360.98564736629*d

	lon = gomath.Mod(ra/deg-gmst, 360)
	switch {
	case lon > 180:
		lon -= 360
	case lon < -180:
		lon += 360
	}
	return lon, dec / deg
}

// Direction converts a longitude and latitude in degrees to a unit vector in
// earth-centered coordinates.
func Direction(lon, lat float64) math.Vec3 {
	sinLon, cosLon := gomath.Sincos(lon * deg)
	sinLat, cosLat := gomath.Sincos(lat * deg)
	return math.Vec3{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}
}

// SunDirection returns the unit vector pointing at the sun at t.
func SunDirection(t time.Time) math.Vec3 {
	return Direction(SubSolarPoint(t))
}
