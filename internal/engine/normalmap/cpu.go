package normalmap

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/Faultbox/midgard-globe/internal/engine/quadtree"
	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
)

// Image is a normal map held in memory. Normals are encoded as
// rgb = n*0.5 + 0.5.
type Image struct {
	*image.NRGBA
	released bool
}

// Release drops the pixels.
func (im *Image) Release() {
	im.released = true
	im.NRGBA = nil
}

// Released reports whether Release was called.
func (im *Image) Released() bool { return im.released }

// CPURasterizer draws the segment grid triangles into an image, then
// scales and blurs it.
type CPURasterizer struct {
	// Size is the output texture size in pixels.
	Size int
	// Supersample is the working resolution per grid cell.
	Supersample int
	// Blur is the box blur radius in output pixels. Zero disables it.
	Blur int

	cache *terrain.Cache
}

// NewCPURasterizer creates a rasterizer that triangulates with the strips
// from cache.
func NewCPURasterizer(cache *terrain.Cache, size, blur int) *CPURasterizer {
	return &CPURasterizer{Size: size, Supersample: 4, Blur: blur, cache: cache}
}

// Rasterize implements Rasterizer.
func (r *CPURasterizer) Rasterize(normals []float32, size int) (quadtree.Texture, error) {
	if size < 2 || len(normals) != size*size*3 {
		return nil, fmt.Errorf("%w: %d values for %d samples per side", ErrBadNormals, len(normals), size)
	}
	cells := size - 1
	strip, err := r.cache.SegmentIndexes(terrain.Key{cells, cells, cells, cells, cells})
	if err != nil {
		return nil, fmt.Errorf("triangulating %d cells: %w", cells, err)
	}

	work := cells * max(r.Supersample, 1)
	if r.Size > 0 {
		work = min(work, r.Size)
	}
	img := image.NewNRGBA(image.Rect(0, 0, work, work))
	scale := float64(work) / float64(cells)
	for _, tri := range terrain.Triangles(strip) {
		fillTriangle(img, normals, size, scale, tri)
	}

	out := img
	if r.Size > 0 && r.Size != work {
		out = image.NewNRGBA(image.Rect(0, 0, r.Size, r.Size))
		draw.BiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	if r.Blur > 0 {
		boxBlur(out, r.Blur)
	}
	return &Image{NRGBA: out}, nil
}

// fillTriangle shades the pixels whose centres fall inside a grid triangle,
// interpolating the vertex normals barycentrically.
func fillTriangle(img *image.NRGBA, normals []float32, size int, scale float64, tri [3]uint32) {
	var px, py [3]float64
	for k, v := range tri {
		px[k] = float64(int(v)%size) * scale
		py[k] = float64(int(v)/size) * scale
	}
	area := (px[1]-px[0])*(py[2]-py[0]) - (px[2]-px[0])*(py[1]-py[0])
	if area == 0 {
		return
	}

	b := img.Bounds()
	x0 := max(int(min(px[0], px[1], px[2])), b.Min.X)
	x1 := min(int(max(px[0], px[1], px[2]))+1, b.Max.X)
	y0 := max(int(min(py[0], py[1], py[2])), b.Min.Y)
	y1 := min(int(max(py[0], py[1], py[2]))+1, b.Max.Y)

	const eps = -1e-9
	for y := y0; y < y1; y++ {
		cy := float64(y) + 0.5
		for x := x0; x < x1; x++ {
			cx := float64(x) + 0.5
			w0 := ((px[1]-cx)*(py[2]-cy) - (px[2]-cx)*(py[1]-cy)) / area
			w1 := ((px[2]-cx)*(py[0]-cy) - (px[0]-cx)*(py[2]-cy)) / area
			w2 := 1 - w0 - w1
			if w0 < eps || w1 < eps || w2 < eps {
				continue
			}

			var n [3]float64
			for c := 0; c < 3; c++ {
				n[c] = w0*float64(normals[int(tri[0])*3+c]) +
					w1*float64(normals[int(tri[1])*3+c]) +
					w2*float64(normals[int(tri[2])*3+c])
			}
			img.SetNRGBA(x, y, encodeNormal(n))
		}
	}
}

func encodeNormal(n [3]float64) color.NRGBA {
	ch := func(v float64) uint8 {
		v = (v*0.5 + 0.5) * 255
		return uint8(min(max(v+0.5, 0), 255))
	}
	return color.NRGBA{R: ch(n[0]), G: ch(n[1]), B: ch(n[2]), A: 255}
}

// DecodeNormal maps an encoded pixel back to a vector.
func DecodeNormal(c color.NRGBA) [3]float64 {
	f := func(v uint8) float64 { return float64(v)/255*2 - 1 }
	return [3]float64{f(c.R), f(c.G), f(c.B)}
}

// boxBlur applies a separable box blur of radius r to the colour channels.
func boxBlur(img *image.NRGBA, r int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]uint8, len(img.Pix))

	pass := func(src, dst []uint8, n, lines int, at func(line, i int) int) {
		for line := 0; line < lines; line++ {
			for i := 0; i < n; i++ {
				var sum [3]int
				count := 0
				for k := max(i-r, 0); k <= min(i+r, n-1); k++ {
					o := at(line, k)
					sum[0] += int(src[o])
					sum[1] += int(src[o+1])
					sum[2] += int(src[o+2])
					count++
				}
				o := at(line, i)
				dst[o] = uint8(sum[0] / count)
				dst[o+1] = uint8(sum[1] / count)
				dst[o+2] = uint8(sum[2] / count)
				dst[o+3] = src[o+3]
			}
		}
	}

	stride := img.Stride
	pass(img.Pix, tmp, w, h, func(y, x int) int { return y*stride + x*4 })
	pass(tmp, img.Pix, h, w, func(x, y int) int { return y*stride + x*4 })
}
