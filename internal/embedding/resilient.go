package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"opportunity-recommender/internal/common/logger"
)

// RateLimited blocks each call until the limiter admits it or ctx ends.
type RateLimited struct {
	inner   Embedder
	limiter *rate.Limiter
}

func WithRateLimit(inner Embedder, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) Dimension() int { return r.inner.Dimension() }

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.Embed(ctx, text)
}

// ErrBreakerOpen is returned while the provider circuit is open.
var ErrBreakerOpen = errors.New("embedding provider circuit open")

type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Breaker stops calling a failing provider for OpenTimeout after
// FailureThreshold consecutive failures.
type Breaker struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker[[]float32]
}

func WithBreaker(inner Embedder, cfg BreakerConfig, log logger.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	log = log.WithFields(map[string]interface{}{"component": "embedding-breaker", "provider": inner.Name()})

	settings := gobreaker.Settings{
		Name:        "embedding-" + inner.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a provider failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}

	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker[[]float32](settings)}
}

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Dimension() int { return b.inner.Dimension() }

// State exposes the breaker state for health reporting.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := b.cb.Execute(func() ([]float32, error) {
		return b.inner.Embed(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	return vec, err
}
