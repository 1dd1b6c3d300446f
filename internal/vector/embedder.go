package vector

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the vector width used when none is configured.
const DefaultDimensions = 256

// HashEmbedder is a deterministic bag-of-words embedder: tokens hash into a
// fixed number of buckets and the counts are L2-normalized. Identical texts
// embed identically and token overlap moves vectors closer, which is all the
// pipeline needs for reference behavior and tests. Swap in a model-backed
// Embedder for real deployments.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates an embedder producing vectors of the given width.
// Widths below one fall back to DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims < 1 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
