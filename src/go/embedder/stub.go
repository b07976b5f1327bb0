package embedder

import (
	"context"
	"crypto/sha256"
)

// StubProvider is a deterministic, seeded pseudo-embedding generator used
// in tests and as a fallback when no real provider is configured. Equal
// input text always yields the same vector, which is what the cache
// determinism property (§8) and the retrieval integration tests rely on.
type StubProvider struct {
	dim int
}

// NewStubProvider builds a deterministic provider of the given dimension.
func NewStubProvider(dim int) *StubProvider {
	return &StubProvider{dim: dim}
}

func (p *StubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorForText(t)
	}
	return out, nil
}

func (p *StubProvider) vectorForText(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(0)
	for i := 0; i < 8; i++ {
		seed = (seed << 8) | int64(sum[i])
	}
	return p.vectorFromSeed(seed)
}

// vectorFromSeed generates a pseudo-random vector via a linear
// congruential generator, reproducible given the same seed.
func (p *StubProvider) vectorFromSeed(seed int64) []float32 {
	vector := make([]float32, p.dim)
	rng := seed
	for i := 0; i < p.dim; i++ {
		rng = (rng*1103515245 + 12345) & 0x7fffffff
		value := float32(rng) / float32(0x7fffffff) // [0,1]
		vector[i] = (value - 0.5) * 4.0              // [-2,2]
	}
	return vector
}
