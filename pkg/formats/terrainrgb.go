package formats

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // terrain-RGB tiles are usually PNG

	_ "golang.org/x/image/webp" // Mapbox also serves WebP terrain tiles
)

// RGBHeight converts a terrain-RGB pixel to meters.
func RGBHeight(r, g, b uint8) float32 {
	v := int(r)*65536 + int(g)*256 + int(b)
	return float32(-10000 + float64(v)*0.1)
}

// ParseTerrainRGB decodes a square terrain-RGB image into heights.
func ParseTerrainRGB(data []byte) (*Grid, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding terrain-rgb image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() != b.Dy() || b.Dx() == 0 {
		return nil, fmt.Errorf("%w: %dx%d image", ErrBadGridSize, b.Dx(), b.Dy())
	}

	n := b.Dx()
	heights := make([]float32, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			heights[y*n+x] = RGBHeight(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return &Grid{Size: n, Heights: heights}, nil
}
