// Package formats provides decoders for elevation tile payloads.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// Elevation decoding errors.
var (
	ErrShortPayload  = errors.New("elevation payload too short")
	ErrBadGridSize   = errors.New("elevation payload is not a square grid")
	ErrUnknownFormat = errors.New("unknown elevation format")
)

// Format identifies an elevation payload encoding.
type Format string

// Supported formats.
const (
	FormatDDM Format = "ddm" // little-endian float32 samples
	FormatBIL Format = "bil" // big-endian int16 samples
	FormatRGB Format = "rgb" // terrain-RGB encoded PNG or WebP
)

// ParseFormat parses a format name. Matching is case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDDM, FormatBIL, FormatRGB:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Grid is a square grid of elevation samples stored row by row, north first.
type Grid struct {
	Size    int
	Heights []float32
}

// MinMax returns the lowest and highest sample.
func (g *Grid) MinMax() (lo, hi float32) {
	if len(g.Heights) == 0 {
		return 0, 0
	}
	lo, hi = g.Heights[0], g.Heights[0]
	for _, h := range g.Heights[1:] {
		lo = min(lo, h)
		hi = max(hi, h)
	}
	return lo, hi
}

// At returns the sample at column x, row y, clamped to the grid.
func (g *Grid) At(x, y int) float32 {
	x = min(max(x, 0), g.Size-1)
	y = min(max(y, 0), g.Size-1)
	return g.Heights[y*g.Size+x]
}

// Sample returns the bilinear interpolation at fractional column fx and row fy.
func (g *Grid) Sample(fx, fy float64) float32 {
	x0, y0 := int(fx), int(fy)
	tx := float32(fx - float64(x0))
	ty := float32(fy - float64(y0))
	top := g.At(x0, y0)*(1-tx) + g.At(x0+1, y0)*tx
	bottom := g.At(x0, y0+1)*(1-tx) + g.At(x0+1, y0+1)*tx
	return top*(1-ty) + bottom*ty
}

// Resample returns a size x size grid by bilinear interpolation.
// A grid that already has the requested size is returned unchanged.
func (g *Grid) Resample(size int) *Grid {
	if size == g.Size || g.Size == 0 {
		return g
	}

	out := &Grid{Size: size, Heights: make([]float32, size*size)}
	scale := float64(g.Size-1) / float64(max(size-1, 1))
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			out.Heights[i*size+j] = g.Sample(float64(j)*scale, float64(i)*scale)
		}
	}
	return out
}

// squareSide returns n when count == n*n.
func squareSide(count int) (int, error) {
	if count == 0 {
		return 0, ErrShortPayload
	}
	n := int(math.Round(math.Sqrt(float64(count))))
	if n*n != count {
		return 0, fmt.Errorf("%w: %d samples", ErrBadGridSize, count)
	}
	return n, nil
}

// ParseDDM decodes a raw little-endian float32 grid.
func ParseDDM(data []byte) (*Grid, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(data))
	}

	n, err := squareSide(len(data) / 4)
	if err != nil {
		return nil, err
	}

	heights := make([]float32, n*n)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, heights); err != nil {
		return nil, fmt.Errorf("reading ddm samples: %w", err)
	}
	return &Grid{Size: n, Heights: heights}, nil
}

// EncodeDDM encodes a grid as raw little-endian float32 samples.
func EncodeDDM(g *Grid) []byte {
	out := make([]byte, len(g.Heights)*4)
	for i, h := range g.Heights {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(h))
	}
	return out
}

// ParseBIL decodes a band-interleaved int16 grid in the given byte order.
func ParseBIL(data []byte, order binary.ByteOrder) (*Grid, error) {
	if len(data) < 2 || len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(data))
	}

	n, err := squareSide(len(data) / 2)
	if err != nil {
		return nil, err
	}

	heights := make([]float32, n*n)
	for i := range heights {
		heights[i] = float32(int16(order.Uint16(data[i*2:])))
	}
	return &Grid{Size: n, Heights: heights}, nil
}

// Decode decodes a payload of the given format.
func Decode(format Format, data []byte) (*Grid, error) {
	switch format {
	case FormatDDM:
		return ParseDDM(data)
	case FormatBIL:
		return ParseBIL(data, binary.BigEndian)
	case FormatRGB:
		return ParseTerrainRGB(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// DecodeFile decodes an elevation tile from disk, taking the format from the
// file extension (.ddm, .bil, .png, .webp).
func DecodeFile(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var f Format
	switch {
	case strings.HasSuffix(path, ".ddm"):
		f = FormatDDM
	case strings.HasSuffix(path, ".bil"):
		f = FormatBIL
	case strings.HasSuffix(path, ".png"), strings.HasSuffix(path, ".webp"):
		f = FormatRGB
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return Decode(f, data)
}
