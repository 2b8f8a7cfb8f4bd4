package repository

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const hashEmbeddingDimensions = 384

// HashEmbedding is a deterministic bag-of-words embedding using feature
// hashing. Texts sharing words land close to each other, which is enough for
// local development without a model.
func HashEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbeddingDimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()

		idx := int(sum % uint64(hashEmbeddingDimensions-1))
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	// last dimension is a constant bias so that no vector is all zero
	vec[hashEmbeddingDimensions-1] = 0.1

	return normalize(vec), nil
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}

	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
