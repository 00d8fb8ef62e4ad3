package badger

import "math"

// cosineDistance returns 1 - cos(a, b). a and b must have the same length.
// A zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	// Rounding can push parallel vectors just below zero
	return float32(max(0, 1-dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}
