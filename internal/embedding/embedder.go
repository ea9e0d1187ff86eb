// Package embedding provides the text-to-vector capability the recommender
// consumes, with local and remote backends and optional decorators.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/logger"
)

// Embedder maps free text to a dense vector of fixed dimensionality.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	ErrEmptyEmbedding     = errors.New("provider returned no embedding")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrNonFiniteComponent = errors.New("embedding has non-finite component")
)

// checkVector validates a provider response against the expected dimension.
// dim <= 0 accepts any non-empty vector.
func checkVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return ErrEmptyEmbedding
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), dim)
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonFiniteComponent
		}
	}
	return nil
}

// New builds the configured provider and wraps it with the enabled decorators,
// innermost first: rate limit, circuit breaker, cache. rdb may be nil.
func New(cfg config.EmbeddingConfig, rdb *redis.Client, log logger.Logger) (Embedder, error) {
	var base Embedder
	switch cfg.Provider {
	case config.ProviderLocal, "":
		base = NewHashing(cfg.Dimension)
	case config.ProviderOpenAI:
		base = NewOpenAI(RemoteConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   config.GetDuration(cfg.Timeout),
		})
	case config.ProviderGemini:
		base = NewGemini(RemoteConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   config.GetDuration(cfg.Timeout),
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}

	emb := base
	if cfg.RateLimit.PerSecond > 0 {
		emb = WithRateLimit(emb, cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}
	if cfg.Breaker.Enabled {
		emb = WithBreaker(emb, BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      config.GetDuration(cfg.Breaker.OpenTimeout),
		}, log)
	}
	if rdb != nil && cfg.CacheTTL > 0 {
		emb = WithCache(emb, rdb, cfg.Model, time.Duration(cfg.CacheTTL)*time.Second, log)
	}

	log.Info("embedding provider ready", map[string]interface{}{
		"provider":  emb.Name(),
		"dimension": emb.Dimension(),
	})
	return emb, nil
}
