package embedding

import (
	"math"

	"github.com/oshigiri/kensaku/internal/models"
)

// CosineSimilarity returns the cosine similarity of a and b, clamped to [0,1].
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}

// L2Distance returns the Euclidean distance between a and b.
// Mismatched or empty vectors are infinitely far apart.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Normalize returns a copy of v scaled to unit L2 norm.
// The zero vector maps to a copy of itself.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1.0 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// validateVector checks a provider response vector against the declared
// dimension and rejects non-finite components. Violations are fatal for that
// embedding and reported as a DimensionMismatchError.
func validateVector(model string, want int, vec []float32) error {
	if len(vec) != want {
		return &models.DimensionMismatchError{Model: model, Want: want, Got: len(vec)}
	}
	for _, x := range vec {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &models.DimensionMismatchError{Model: model, Want: want, Got: len(vec)}
		}
	}
	return nil
}
