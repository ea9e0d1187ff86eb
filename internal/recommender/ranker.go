package recommender

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"opportunity-recommender/internal/catalog"
	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/metrics"
	"opportunity-recommender/internal/embedding"
	"opportunity-recommender/internal/models"
)

// Skip reasons, used as metric labels.
const (
	reasonDimensionMismatch = "dimension_mismatch"
	reasonNonFinite         = "non_finite"
)

// Ranker scores filtered catalog candidates against the user's profile
// vector. It holds no per-request state and is safe for concurrent use.
type Ranker struct {
	embedder embedding.Embedder
	store    catalog.Store
	builder  *QueryBuilder
	policy   Policy
	logger   logger.Logger
}

func NewRanker(emb embedding.Embedder, store catalog.Store, policy Policy, log logger.Logger) *Ranker {
	policy = policy.withDefaults()
	return &Ranker{
		embedder: emb,
		store:    store,
		builder:  NewQueryBuilder(policy),
		policy:   policy,
		logger: log.WithFields(map[string]interface{}{
			"component": "ranker",
			"provider":  emb.Name(),
			"backend":   store.Backend(),
		}),
	}
}

// Builder exposes the query builder the ranker normalizes with.
func (r *Ranker) Builder() *QueryBuilder { return r.builder }

// Rank returns at most q.TopK candidates ordered by descending cosine
// similarity. Equal scores keep store order. Errors are *errors.StandardError.
func (r *Ranker) Rank(ctx context.Context, q Query) ([]models.RankedOpportunity, error) {
	start := time.Now()

	nq, err := r.builder.Normalize(q)
	if err != nil {
		return nil, err
	}

	userVec, err := r.embed(ctx, EmbeddingText(nq.Interests, nq.Age, nq.Region))
	if err != nil {
		return nil, err
	}

	candidates, err := r.find(ctx, r.builder.Filter(nq.Age, nq.Region, true))
	if err != nil {
		return nil, err
	}

	ranked := make([]models.RankedOpportunity, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		reason := ""
		switch {
		case len(c.Embedding) != len(userVec):
			reason = reasonDimensionMismatch
		case !finite(c.Embedding):
			reason = reasonNonFinite
		}

		if reason != "" {
			if r.policy.StrictIntegrity {
				return nil, apperrors.NewDataIntegrityError(recordRef(c),
					fmt.Sprintf("%s: embedding has %d components, query has %d", reason, len(c.Embedding), len(userVec)))
			}
			skipped++
			metrics.CandidatesSkipped.WithLabelValues(reason).Inc()
			r.logger.Warn("skipping candidate with unusable embedding", map[string]interface{}{
				"recordId":  recordRef(c),
				"reason":    reason,
				"dimension": len(c.Embedding),
				"expected":  len(userVec),
			})
			continue
		}

		score := Cosine(userVec, c.Embedding)
		if r.policy.StripEmbeddings {
			c.Embedding = nil
		}
		ranked = append(ranked, models.RankedOpportunity{Opportunity: c, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > nq.TopK {
		ranked = ranked[:nq.TopK]
	}

	elapsed := time.Since(start)
	fields := map[string]interface{}{
		"age":        nq.Age,
		"region":     nq.Region,
		"candidates": len(candidates),
		"skipped":    skipped,
		"returned":   len(ranked),
		"durationMs": elapsed.Milliseconds(),
	}
	if r.policy.SlowThreshold > 0 && elapsed > r.policy.SlowThreshold {
		r.logger.Warn("slow ranking", fields)
	} else {
		r.logger.Debug("ranking complete", fields)
	}

	return ranked, nil
}

func (r *Ranker) embed(ctx context.Context, text string) ([]float32, error) {
	if r.policy.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.EmbedTimeout)
		defer cancel()
	}

	vec, err := r.embedder.Embed(ctx, text)
	metrics.EmbeddingRequests.WithLabelValues(r.embedder.Name(), metrics.StatusOf(err)).Inc()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewUpstreamTimeoutError(r.embedder.Name(), err)
		}
		return nil, apperrors.NewUpstreamError(r.embedder.Name(), err)
	}
	if len(vec) == 0 {
		return nil, apperrors.NewUpstreamError(r.embedder.Name(), embedding.ErrEmptyEmbedding)
	}
	if !finite(vec) {
		return nil, apperrors.NewUpstreamError(r.embedder.Name(), embedding.ErrNonFiniteComponent)
	}
	return vec, nil
}

func (r *Ranker) find(ctx context.Context, f catalog.Filter) ([]models.Opportunity, error) {
	return findWithTimeout(ctx, r.store, f, r.policy.StoreTimeout)
}

func findWithTimeout(ctx context.Context, store catalog.Store, f catalog.Filter, timeout time.Duration) ([]models.Opportunity, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	records, err := store.Find(ctx, f)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewStoreTimeoutError(store.Backend(), err)
		}
		return nil, apperrors.NewStoreError(store.Backend(), err)
	}
	return records, nil
}

// recordRef names a record for logs and integrity errors.
func recordRef(o models.Opportunity) string {
	if o.ID != "" {
		return o.ID
	}
	return o.StoreID
}
