package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"opportunity-recommender/internal/common/logger"
)

// Cached memoizes embeddings in redis. Cache failures are logged and the
// inner embedder is called as if the entry were missing.
type Cached struct {
	inner  Embedder
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

func WithCache(inner Embedder, rdb *redis.Client, model string, ttl time.Duration, log logger.Logger) *Cached {
	return &Cached{
		inner:  inner,
		rdb:    rdb,
		prefix: fmt.Sprintf("emb:%s:%s:%d:", inner.Name(), model, inner.Dimension()),
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "embedding-cache"}),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) key(text string) string {
	return fmt.Sprintf("%s%016x", c.prefix, xxhash.Sum64String(text))
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jerr := json.Unmarshal(val, &vec); jerr == nil && checkVector(vec, c.inner.Dimension()) == nil {
			return vec, nil
		}
		c.logger.Warn("discarding unreadable cache entry", map[string]interface{}{"key": key})
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("embedding cache read failed", map[string]interface{}{"error": err})
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", map[string]interface{}{"error": err})
		}
	}
	return vec, nil
}
