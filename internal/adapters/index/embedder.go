package index

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns text into a fixed-size vector. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// hashingDims is the vector size of the offline embedder. Small enough to
// keep snapshots cheap, large enough that token collisions stay rare for
// catalog-sized vocabularies.
const hashingDims = 256

// HashingEmbedder is the offline default: token feature hashing with
// L2 normalization. Deterministic, dependency-free, and good enough for
// keyword-space matching when no embedding API is configured.
type HashingEmbedder struct{}

// NewHashingEmbedder returns the offline embedder.
func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{}
}

// Embed hashes each token into one of hashingDims buckets and normalizes
// the resulting count vector. Never returns an error.
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashingDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		f.Write([]byte(token))
		sum := f.Sum32()
		// Low bits pick the bucket, one high bit picks the sign so that
		// unrelated tokens cancel rather than pile up.
		bucket := sum % hashingDims
		if sum&0x80000000 != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	normalize(vec)
	return vec, nil
}

// normalize scales vec to unit length in place. Zero vectors stay zero.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}

// dot is the cosine similarity of two unit vectors. Mismatched lengths
// score zero, which keeps mixed-embedder snapshots harmless.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
