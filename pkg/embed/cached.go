package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/types"
)

// Cached serves vectors from a persistent cache and embeds only the misses.
// Cache failures are logged and fall through to the wrapped embedder.
type Cached struct {
	inner    types.Embedder
	cache    types.EmbeddingCache
	observer func(hits, misses int)
}

func NewCached(inner types.Embedder, cache types.EmbeddingCache) *Cached {
	return &Cached{inner: inner, cache: cache}
}

// WithObserver sets a callback that receives hit and miss counts per call.
func (c *Cached) WithObserver(fn func(hits, misses int)) *Cached {
	c.observer = fn
	return c
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = CacheKey(c.inner.Name(), text)
	}

	hits, err := c.cache.Get(ctx, keys)
	if err != nil {
		logger.Warn("embedding cache read failed: %v", err)
		hits = nil
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, key := range keys {
		if v, ok := hits[key]; ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	logger.Debug("embedding cache: %d hits, %d misses", len(texts)-len(missIdx), len(missIdx))
	if c.observer != nil {
		c.observer(len(texts)-len(missIdx), len(missIdx))
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", c.inner.Name(), len(vectors), len(missTexts))
	}

	fresh := make(map[string][]float32, len(vectors))
	for j, v := range vectors {
		i := missIdx[j]
		out[i] = v
		fresh[keys[i]] = v
	}
	if err := c.cache.Put(ctx, fresh); err != nil {
		logger.Warn("embedding cache write failed: %v", err)
	}
	return out, nil
}

// CacheKey digests the embedder name and text.
func CacheKey(embedder, text string) string {
	sum := sha256.Sum256([]byte(embedder + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
