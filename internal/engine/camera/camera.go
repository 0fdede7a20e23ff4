// Package camera provides the globe camera used to pick terrain detail.
package camera

import (
	gomath "math"

	"github.com/Faultbox/midgard-globe/pkg/geo"
	"github.com/Faultbox/midgard-globe/pkg/math"
)

// GlobeCamera hovers over a geodetic position and looks down at the surface.
type GlobeCamera struct {
	// Position over the ellipsoid (degrees, meters)
	Lon, Lat float64
	Height   float64

	// Orientation (radians). Heading 0 faces north, Tilt 0 looks straight down.
	Heading float64
	Tilt    float64

	// Projection
	FovY   float64
	Aspect float64

	// Constraints
	MinHeight float64
	MaxHeight float64
	MaxLat    float64
	MaxTilt   float64

	// Sensitivity
	DragSensitivity float64
	ZoomSensitivity float64

	ellipsoid geo.Ellipsoid

	eye                    math.Vec3
	forward, right, up     math.Vec3
	near, far, tanHalfFovY float64
	frustum                math.Frustum
}

// New creates a camera over lon/lat at height meters.
func New(e geo.Ellipsoid, lon, lat, height float64) *GlobeCamera {
	c := &GlobeCamera{
		Lon:             lon,
		Lat:             lat,
		Height:          height,
		FovY:            gomath.Pi / 3,
		Aspect:          1,
		MinHeight:       100,
		MaxHeight:       4 * e.A,
		MaxLat:          89.9,
		MaxTilt:         1.4,
		DragSensitivity: 0.002,
		ZoomSensitivity: 0.1,
		ellipsoid:       e,
	}
	c.Update()
	return c
}

// Update recomputes the eye, basis and frustum after fields change. The
// Handle methods call it themselves.
func (c *GlobeCamera) Update() {
	c.Lat = clamp(c.Lat, -c.MaxLat, c.MaxLat)
	c.Lon = wrapLon(c.Lon)
	c.Height = clamp(c.Height, c.MinHeight, c.MaxHeight)
	c.Tilt = clamp(c.Tilt, 0, c.MaxTilt)

	c.eye = c.ellipsoid.LonLatToCartesian(c.Lon, c.Lat, c.Height)

	n := c.ellipsoid.GeodeticNormal(c.Lon, c.Lat)
	lonR := c.Lon * gomath.Pi / 180
	east := math.Vec3{X: -gomath.Sin(lonR), Y: gomath.Cos(lonR)}
	north := n.Cross(east)

	sinH, cosH := gomath.Sincos(c.Heading)
	sinT, cosT := gomath.Sincos(c.Tilt)
	dir := north.Scale(cosH).Add(east.Scale(sinH))
	c.forward = n.Scale(-cosT).Add(dir.Scale(sinT)).Normalize()
	c.up = n.Scale(sinT).Add(dir.Scale(cosT)).Normalize()
	c.right = c.forward.Cross(c.up).Normalize()

	d := c.eye.Length()
	horizon := gomath.Sqrt(gomath.Max(d*d-c.ellipsoid.A*c.ellipsoid.A, 0))
	c.near = gomath.Max(c.Height*0.1, 1)
	c.far = horizon + c.ellipsoid.A*0.1 + c.Height
	c.tanHalfFovY = gomath.Tan(c.FovY / 2)
	c.frustum = math.NewFrustum(c.eye, c.forward, c.right, c.up, c.FovY, c.Aspect, c.near, c.far)
}

// Eye returns the camera position in earth-centered coordinates.
func (c *GlobeCamera) Eye() math.Vec3 { return c.eye }

// Forward returns the unit view direction.
func (c *GlobeCamera) Forward() math.Vec3 { return c.forward }

// Altitude returns the height of the eye above the ellipsoid.
func (c *GlobeCamera) Altitude() float64 { return c.Height }

// ContainsSphere reports whether s intersects the view frustum.
func (c *GlobeCamera) ContainsSphere(s math.Sphere) bool {
	return c.frustum.ContainsSphere(s)
}

// ProjectedSize returns the half height of the view at the distance of p.
// A segment is detailed enough when it is smaller than this.
func (c *GlobeCamera) ProjectedSize(p math.Vec3) float64 {
	return c.eye.Distance(p) * c.tanHalfFovY
}

// NearFar returns the clip distances.
func (c *GlobeCamera) NearFar() (near, far float64) { return c.near, c.far }

// ViewMatrix returns the rotation-only view matrix. Geometry is drawn relative
// to the eye, so the translation stays out of float32.
func (c *GlobeCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(math.Vec3{}, c.forward, c.up)
}

// ProjectionMatrix returns the perspective projection.
func (c *GlobeCamera) ProjectionMatrix() math.Mat4 {
	return math.Perspective(c.FovY, c.Aspect, c.near, c.far)
}

// SetViewport updates the aspect ratio.
func (c *GlobeCamera) SetViewport(width, height int) {
	if width > 0 && height > 0 {
		c.Aspect = float64(width) / float64(height)
	}
	c.Update()
}

// HandleDrag pans over the surface based on mouse drag delta. The pan is
// scaled with height so the ground follows the cursor.
func (c *GlobeCamera) HandleDrag(deltaX, deltaY float32) {
	deg := c.Height / c.ellipsoid.A * 180 / gomath.Pi * c.DragSensitivity
	sinH, cosH := gomath.Sincos(c.Heading)
	dx, dy := float64(deltaX), float64(deltaY)

	c.Lat += (dy*cosH + dx*sinH) * deg
	c.Lon -= (dx*cosH - dy*sinH) * deg / gomath.Max(gomath.Cos(c.Lat*gomath.Pi/180), 0.01)
	c.Update()
}

// HandleZoom updates height based on scroll wheel delta.
func (c *GlobeCamera) HandleZoom(delta float32) {
	c.Height -= float64(delta) * c.Height * c.ZoomSensitivity
	c.Update()
}

// HandleRotate turns the heading and tilts the view.
func (c *GlobeCamera) HandleRotate(heading, tilt float32) {
	c.Heading += float64(heading) * c.DragSensitivity
	c.Tilt += float64(tilt) * c.DragSensitivity
	c.Update()
}

// HandleMovement moves along the heading based on keyboard input.
func (c *GlobeCamera) HandleMovement(forward, right, up float32) {
	step := c.Height / c.ellipsoid.A * 180 / gomath.Pi * 0.02
	sinH, cosH := gomath.Sincos(c.Heading)
	f, r := float64(forward), float64(right)

	c.Lat += (f*cosH - r*sinH) * step
	c.Lon += (f*sinH + r*cosH) * step / gomath.Max(gomath.Cos(c.Lat*gomath.Pi/180), 0.01)
	c.Height *= 1 + float64(up)*0.02
	c.Update()
}

func clamp(v, lo, hi float64) float64 {
	return gomath.Min(gomath.Max(v, lo), hi)
}

func wrapLon(lon float64) float64 {
	lon = gomath.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
