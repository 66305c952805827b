// Package embedding provides a pluggable interface for text embedding
// providers. The core only consumes vectors; these providers exist so
// the ingest and search boundaries can accept raw text.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/memlayer/memlayer/internal/config"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// New builds an embedder from config. The mock provider is the default
// and requires no external services.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var emb Embedder
	switch cfg.Provider {
	case "", "mock":
		emb = NewMockEmbedder(cfg.Dimensions)
	case "ollama":
		emb = NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.CacheEntries > 0 {
		cached, err := NewCached(emb, cfg.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		emb = cached
	}
	return emb, nil
}

// MockEmbedder produces deterministic vectors by expanding a SHA-256
// digest of the input to the configured dimension. Suitable for local
// development and tests: equal text always yields equal vectors.
type MockEmbedder struct {
	dims int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &MockEmbedder{dims: dims}
}

func (m *MockEmbedder) Model() string   { return "mock" }
func (m *MockEmbedder) Dimensions() int { return m.dims }

// Embed returns an L2-normalized vector derived from the text digest.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	digest := sha256.Sum256([]byte(text))
	vec := make([]float64, m.dims)
	for i := range vec {
		b := digest[i%len(digest)]
		// Mix the position in so repeated digest bytes don't alias.
		vec[i] = float64(b^byte(i)) / 255.0
	}
	normalize(vec)
	return vec, nil
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}
