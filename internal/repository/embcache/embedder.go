// Package embcache caches query embeddings in Valkey, keyed by a hash of
// model and text, so repeated queries skip the upstream call.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/resmatch/internal/db"
	"github.com/kailas-cloud/resmatch/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures the cache keyspace.
type Options struct {
	// Prefix is the global key prefix; entries live under <Prefix>emb_cache:.
	Prefix string
	// Model namespaces entries so a model switch never serves stale vectors.
	Model string
	// Dimensions, when set, drops cached vectors of any other length.
	Dimensions int
	TTL        time.Duration
}

// CachedEmbedder caches embeddings in a key-value store. Concurrent misses
// for the same text share one upstream call.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	opts       Options
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	flight     singleflight.Group
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" (hit, miss, stale).
func New(
	inner domain.Embedder,
	s store,
	opts Options,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		opts:       opts,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hits report zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	digest := c.digest(text)
	key := c.opts.Prefix + "emb_cache:" + digest

	if vec, ok := c.lookup(ctx, key, digest); ok {
		c.inc("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.inc("miss")

	v, err, _ := c.flight.Do(digest, func() (any, error) {
		res, err := c.inner.Embed(ctx, text)
		if err != nil {
			return domain.EmbeddingResult{}, err
		}
		c.save(ctx, key, digest, res.Embedding)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	return v.(domain.EmbeddingResult), nil
}

func (c *CachedEmbedder) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// digest hashes model and text. Logs carry only a short prefix of it.
func (c *CachedEmbedder) digest(text string) string {
	h := sha256.Sum256([]byte(c.opts.Model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key, digest string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read cached embedding", zap.String("digest", digest[:12]), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := db.DecodeVector(string(data))
	if err != nil {
		c.logger.Warn("Discarding corrupt cached embedding", zap.String("digest", digest[:12]), zap.Error(err))
		return nil, false
	}
	if c.opts.Dimensions > 0 && len(vec) != c.opts.Dimensions {
		c.inc("stale")
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, key, digest string, vec []float32) {
	if len(vec) == 0 || (c.opts.Dimensions > 0 && len(vec) != c.opts.Dimensions) {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, []byte(db.EncodeVector(vec)), c.opts.TTL); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("digest", digest[:12]), zap.Error(err))
	}
}
