package repository

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
)

// CachedEmbedder memoizes embeddings of recently seen texts. Search queries
// from agents repeat often, and each miss costs a model call.
type CachedEmbedder struct {
	embedder interfaces.Embedder
	cache    *ristretto.Cache
	ttl      time.Duration
}

var _ interfaces.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps embedder with a cache holding roughly maxEntries
// embeddings for ttl each.
func NewCachedEmbedder(embedder interfaces.Embedder, maxEntries int64, ttl time.Duration) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
		ttl:      ttl,
	}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(text, vec, 1, c.ttl)
	return vec, nil
}

// Wait blocks until pending cache writes are applied
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
