// Package recommender turns a user profile into a ranked list of catalog
// opportunities and serves the filter-only browse sections.
package recommender

import (
	"context"
	"fmt"
	"time"

	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/metrics"
	"opportunity-recommender/internal/common/observability"
	"opportunity-recommender/internal/models"
)

// Service is the public boundary of the recommender. It is the only layer
// that converts errors into error envelopes.
type Service struct {
	ranker *Ranker
	obs    *observability.Observability
	logger logger.Logger
}

// NewService wraps a ranker. obs may be nil.
func NewService(ranker *Ranker, obs *observability.Observability, log logger.Logger) *Service {
	return &Service{
		ranker: ranker,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"component": "recommender"}),
	}
}

// DefaultTopK is what transports use when the caller omits top_k.
func (s *Service) DefaultTopK() int { return s.ranker.policy.DefaultTopK }

// Recommend ranks the catalog for q. It never returns partial results: the
// envelope is either a full success, possibly empty, or an error.
func (s *Service) Recommend(ctx context.Context, q Query) (env Envelope[models.RankedOpportunity]) {
	requestID := RequestIDFrom(ctx)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err := apperrors.NewInternalError(fmt.Errorf("panic: %v", rec))
			s.logger.Error("recommendation panicked", map[string]interface{}{
				"requestId": requestID,
				"panic":     fmt.Sprint(rec),
			})
			env = ErrorEnvelope[models.RankedOpportunity](err, requestID)
		}
		s.record(ctx, "recommend", env, time.Since(start))
	}()

	results, err := s.ranker.Rank(ctx, q)
	if err != nil {
		stdErr := apperrors.AsStandardError(err)
		fields := map[string]interface{}{
			"requestId": requestID,
			"code":      stdErr.Code,
			"category":  apperrors.GetErrorCategory(stdErr.Code),
			"error":     stdErr,
		}
		if stdErr.Code == apperrors.ErrCodeValidation {
			s.logger.Warn("recommendation rejected", fields)
		} else {
			s.logger.Error("recommendation failed", fields)
		}
		return ErrorEnvelope[models.RankedOpportunity](stdErr, requestID)
	}

	s.logger.Info("recommendation served", map[string]interface{}{
		"requestId":  requestID,
		"count":      len(results),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return successEnvelope(results, requestID)
}

func (s *Service) record(ctx context.Context, operation string, env Envelope[models.RankedOpportunity], elapsed time.Duration) {
	metrics.RecommendationsTotal.WithLabelValues(env.Status).Inc()
	metrics.RecommendationDuration.Observe(elapsed.Seconds())
	s.obs.RecordRequest(ctx, operation, env.Status, elapsed, env.Count)
}
