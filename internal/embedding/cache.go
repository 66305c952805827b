package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes an embedder's text->vector results. Embedding is a
// pure function of the text for a fixed model, so caching cannot change
// search results, only skip provider round-trips.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps an embedder with a bounded in-process cache.
func NewCached(inner Embedder, maxEntries int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Model() string   { return c.inner.Model() }
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Embed returns the cached vector when available, otherwise delegates.
func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float64); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}
