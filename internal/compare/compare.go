// Package compare scores the similarity of two face embeddings from the same backend.
package compare

import "math"

// Cosine computes the cosine similarity between two embedding vectors.
// Returns a value in [-1, 1], or 0 when either vector is absent, the lengths
// differ, or a vector has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	return math.Max(-1, math.Min(1, sim))
}

// Similarity rescales cosine similarity from [-1, 1] to [0, 1]: (cos + 1) / 2.
// Absent or incomparable vectors carry no evidence and score 0.
func Similarity(a, b []float32) float64 {
	if !Comparable(a, b) {
		return 0
	}
	return (Cosine(a, b) + 1) / 2
}

// Comparable reports whether both vectors are present, equally long and non-zero.
func Comparable(a, b []float32) bool {
	return len(a) > 0 && len(a) == len(b) && norm(a) > 0 && norm(b) > 0
}

// Distance is the cosine distance 1 - cos, in [0, 2]. Incomparable vectors
// get the maximum distance.
func Distance(a, b []float32) float64 {
	if !Comparable(a, b) {
		return 2.0
	}
	return 1 - Cosine(a, b)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
