package providers

import (
	"fmt"
	"math"

	"dory/internal/util"
)

// CheckShape verifies an (N, D) result: want rows, equal widths, D > 0.
func CheckShape(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: expected %d vectors, got %d", util.ErrMalformedResult, want, len(vectors))
	}
	if want == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero-width embedding", util.ErrMalformedResult)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has width %d, expected %d", util.ErrMalformedResult, i, len(v), dim)
		}
	}
	return nil
}

// L2Normalize scales v in place by 1/(||v|| + 1e-9).
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	inv := 1.0 / (math.Sqrt(sum) + 1e-9)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
