// Package embcache caches embeddings in a key-value store so repeated
// indexing runs and common queries skip the provider round-trip.
//
// Entries are keyed by the SHA-256 of the input text and hold the raw
// little-endian float32 vector. The cache is strictly best-effort: a broken
// or unreachable store degrades to calling the provider, never to an error.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/db"
	"github.com/kailas-cloud/blograg/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder decorates a domain.Embedder with a read-through cache.
type CachedEmbedder struct {
	inner  domain.Embedder
	store  store
	hits   *prometheus.CounterVec
	logger *zap.Logger
}

// New wraps inner with a cache backed by s. hits carries a "result" label
// ("hit"/"miss") and may be nil.
func New(inner domain.Embedder, s store, hits *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: s, hits: hits, logger: logger}
}

// Embed serves the vector from the cache when present, otherwise asks the
// inner embedder and stores the result. A cached answer reports zero tokens
// since no provider call happened.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	sum := sha256.Sum256([]byte(text))
	key := cacheKeyPrefix + hex.EncodeToString(sum[:])

	if vec := c.lookup(ctx, key); vec != nil {
		c.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if err := c.store.Set(ctx, key, encodeVector(result.Embedding)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// lookup returns the cached vector or nil when absent or unreadable.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) []float32 {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil
	}
	return vec
}

func (c *CachedEmbedder) count(result string) {
	if c.hits != nil {
		c.hits.WithLabelValues(result).Inc()
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cache entry length %d is not a float32 multiple", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
