package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockProvider is a deterministic offline embedder: the vector is a
// unit-norm function of the text bytes, so identical texts have
// cosine similarity 1 and unrelated texts score near 0 at reasonable
// dimensions. Used by tests and the "mock" config provider.
type MockProvider struct {
	dimension int
}

// NewMockProvider creates a mock embedder. Non-positive dimensions
// default to 64.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) Dimension() int   { return p.dimension }
func (p *MockProvider) Provider() string { return "mock" }

func (p *MockProvider) Embed(_ context.Context, text string) (*Embedding, error) {
	vec := p.vectorFor(text)
	return &Embedding{Vector: vec, Dimension: p.dimension}, nil
}

func (p *MockProvider) EmbedBatch(_ context.Context, texts []string) ([]Embedding, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	out := make([]Embedding, len(texts))
	for i, text := range texts {
		out[i] = Embedding{Vector: p.vectorFor(text), Dimension: p.dimension}
	}
	return out, nil
}

// vectorFor expands the SHA-256 of the text into a pseudo-random
// unit vector, re-hashing with a counter to fill the dimension.
func (p *MockProvider) vectorFor(text string) []float32 {
	processed := Preprocess([]string{text}, 0)
	seed := sha256.Sum256([]byte(processed[0]))

	vec := make([]float32, p.dimension)
	var block [32]byte = seed
	for i := 0; i < p.dimension; i++ {
		if i > 0 && i%8 == 0 {
			block = sha256.Sum256(block[:])
		}
		bits := binary.LittleEndian.Uint32(block[(i%8)*4:])
		// Map to [-1, 1).
		vec[i] = float32(int32(bits)) / float32(math.MaxInt32)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
