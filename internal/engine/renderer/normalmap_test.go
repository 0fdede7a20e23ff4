package renderer

import (
	gomath "math"
	"testing"
)

func TestBlurSteps(t *testing.T) {
	tests := []struct {
		name   string
		radius int
		size   int32
		want   [][2]float32
	}{
		{"disabled", 0, 128, nil},
		{"negative radius", -1, 128, nil},
		{"one pass per axis", 1, 128, [][2]float32{{1.0 / 128, 0}, {0, 1.0 / 128}}},
		{"two passes per axis", 2, 64, [][2]float32{
			{1.0 / 64, 0}, {0, 1.0 / 64},
			{1.0 / 64, 0}, {0, 1.0 / 64},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blurSteps(tt.radius, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("blurSteps(%d, %d) = %v, want %v", tt.radius, tt.size, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("step %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBlurWeightsNormalized(t *testing.T) {
	sum := blurWeights[0] + 2*blurWeights[1] + 2*blurWeights[2]
	if gomath.Abs(float64(sum)-1) > 1e-5 {
		t.Errorf("blur weights sum to %v, want 1", sum)
	}
	if blurOffsets[0] >= blurOffsets[1] {
		t.Errorf("blur offsets %v are not increasing", blurOffsets)
	}
}
