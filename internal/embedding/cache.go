package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oshigiri/kensaku/internal/chunker"
)

const defaultCacheSize = 10000

// CachedEmbedder wraps an Embedder with a read-through LRU cache keyed by
// (content digest, model name). A miss computes and stores; a hit returns
// without recomputation. Concurrent misses for the same key may both compute,
// which is tolerated: the computation is idempotent and side-effect-free, so
// no per-key locking is needed.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return chunker.DigestString(text) + ":" + c.inner.Model()
}

// Embed returns the cached vector for text or computes and caches it.
// Returned slices are copies so callers cannot mutate cached entries.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.cache.Get(key); ok {
		return copyVector(vec), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, copyVector(vec))
	return vec, nil
}

// EmbedBatch serves cached entries and computes only the misses in one inner batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = copyVector(vec)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range computed {
		i := missIdx[j]
		out[i] = vec
		c.cache.Add(c.key(texts[i]), copyVector(vec))
	}
	return out, nil
}

// Len returns the number of cached entries.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Model returns the wrapped embedder's model name.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Dimensions returns the wrapped embedder's declared dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
