package embedding

import "math"

// CosineSimilarity returns dot(a,b) / (||a||*||b||). It is defined to be
// 0.0 whenever the math is degenerate: mismatched lengths, zero-norm
// vectors, or a NaN/Inf result. It never returns NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0.0
	}
	return sim
}

// IsFinite reports whether every component of v is a finite number.
// Producers must replace vectors failing this check with the zero vector
// so NaN never reaches the similarity math.
func IsFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
