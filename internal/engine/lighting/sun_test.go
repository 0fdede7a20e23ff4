package lighting

import (
	gomath "math"
	"testing"
	"time"
)

func TestSubSolarPoint(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		lat      float64
		latTol   float64
		lon      float64
		lonTol   float64
		checkLon bool
	}{
		{"march equinox", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), 0, 0.5, 0, 0, false},
		{"june solstice", time.Date(2024, 6, 20, 20, 51, 0, 0, time.UTC), 23.44, 0.2, 0, 0, false},
		{"december solstice", time.Date(2024, 12, 21, 9, 20, 0, 0, time.UTC), -23.44, 0.2, 0, 0, false},
		{"noon utc", time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC), 10, 1, 0, 5, true},
		{"midnight utc", time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), 10, 1, 180, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lon, lat := SubSolarPoint(tt.at)
			if gomath.Abs(lat-tt.lat) > tt.latTol {
				t.Errorf("lat = %.3f, want %.2f", lat, tt.lat)
			}
			if tt.checkLon {
				// Distance on the circle, so 179 and -179 are close.
				d := gomath.Abs(gomath.Mod(lon-tt.lon+540, 360) - 180)
				if d > tt.lonTol {
					t.Errorf("lon = %.3f, want %.1f", lon, tt.lon)
				}
			}
			if lon < -180 || lon > 180 {
				t.Errorf("lon %.3f out of range", lon)
			}
		})
	}
}

func TestSunDirectionIsUnit(t *testing.T) {
	at := time.Date(2025, 8, 1, 7, 30, 0, 0, time.UTC)
	d := SunDirection(at)
	if l := d.Length(); gomath.Abs(l-1) > 1e-12 {
		t.Errorf("length = %v", l)
	}
	lon, lat := SubSolarPoint(at)
	if got := gomath.Asin(d.Z) / deg; gomath.Abs(got-lat) > 1e-9 {
		t.Errorf("direction latitude = %v, want %v", got, lat)
	}
	if got := gomath.Atan2(d.Y, d.X) / deg; gomath.Abs(got-lon) > 1e-9 {
		t.Errorf("direction longitude = %v, want %v", got, lon)
	}
}

func TestDirectionAxes(t *testing.T) {
	tests := []struct {
		lon, lat float64
		x, y, z  float64
	}{
		{0, 0, 1, 0, 0},
		{90, 0, 0, 1, 0},
		{0, 90, 0, 0, 1},
		{180, 0, -1, 0, 0},
	}
	for _, tt := range tests {
		d := Direction(tt.lon, tt.lat)
		if gomath.Abs(d.X-tt.x) > 1e-12 || gomath.Abs(d.Y-tt.y) > 1e-12 || gomath.Abs(d.Z-tt.z) > 1e-12 {
			t.Errorf("Direction(%v, %v) = %+v", tt.lon, tt.lat, d)
		}
	}
}
