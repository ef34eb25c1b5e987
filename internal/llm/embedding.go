package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// EmbeddingDimension is the width of FeatureEmbedder vectors and of the
// query_examples.embedding column.
const EmbeddingDimension = 256

// FeatureEmbedder hashes word unigrams and character trigrams into a fixed
// vector. Neither generative backend in use offers embeddings, and the
// vectors only need to bring near-identical intents together.
type FeatureEmbedder struct{}

func NewFeatureEmbedder() *FeatureEmbedder {
	return &FeatureEmbedder{}
}

// Embed returns an L2-normalised vector for text.
func (e *FeatureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, EmbeddingDimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		addFeature(vec, "w:"+w, 1.0)
		runes := []rune("^" + w + "$")
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, "c:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, EmbeddingDimension)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func addFeature(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	// The high bit picks a sign so collisions tend to cancel.
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
