package embedding

import "math"

// FallbackEmbedding derives a deterministic vector from the characters of text.
// Each character c at position i adds (c/255 - 0.5)/2 to slot (c*(i+1)) mod dim;
// collisions accumulate. The result is L2-normalized unless it is all zeros.
//
// The same function runs at index time and at query time, so a deployment
// without an embedding API still produces self-consistent similarity results.
func FallbackEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}
	acc := make([]float64, dim)
	i := 0
	for _, r := range text {
		c := int64(r)
		idx := (c * int64(i+1)) % int64(dim)
		acc[idx] += (float64(c)/255 - 0.5) / 2
		i++
	}

	vec := make([]float32, dim)
	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for j, v := range acc {
		vec[j] = float32(v / norm)
	}
	return vec
}

// normalize scales vec to unit length in place. A zero vector is left unchanged.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

func finite(vec []float64) bool {
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
