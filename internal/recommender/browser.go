package recommender

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"opportunity-recommender/internal/catalog"
	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/metrics"
	"opportunity-recommender/internal/common/observability"
	"opportunity-recommender/internal/models"
)

// unknownSection is the metrics label for names that are not configured.
const unknownSection = "unknown"

// Browser serves the filter-only sections (schemes, scholarships, ...). It
// applies the same age and region rules as ranking, without embeddings.
type Browser struct {
	sections map[string]catalog.Store
	builder  *QueryBuilder
	policy   Policy
	obs      *observability.Observability
	logger   logger.Logger
}

func NewBrowser(sections map[string]catalog.Store, policy Policy, obs *observability.Observability, log logger.Logger) *Browser {
	policy = policy.withDefaults()
	normalized := make(map[string]catalog.Store, len(sections))
	for name, store := range sections {
		normalized[strings.ToLower(name)] = store
	}
	return &Browser{
		sections: normalized,
		builder:  NewQueryBuilder(policy),
		policy:   policy,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "browser"}),
	}
}

// Sections lists the configured section names, sorted.
func (b *Browser) Sections() []string {
	names := make([]string, 0, len(b.sections))
	for name := range b.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Browse returns every record of section eligible for age and region, in
// store order. age is required.
func (b *Browser) Browse(ctx context.Context, section string, age *int, region string) Envelope[models.Opportunity] {
	requestID := RequestIDFrom(ctx)
	start := time.Now()
	section = strings.ToLower(strings.TrimSpace(section))

	records, err := b.browse(ctx, section, age, region)

	var env Envelope[models.Opportunity]
	if err != nil {
		stdErr := apperrors.AsStandardError(err)
		b.logger.Warn("browse failed", map[string]interface{}{
			"requestId": requestID,
			"section":   section,
			"code":      stdErr.Code,
			"error":     stdErr,
		})
		env = ErrorEnvelope[models.Opportunity](stdErr, requestID)
	} else {
		env = successEnvelope(records, requestID)
	}

	elapsed := time.Since(start)
	label := section
	if _, ok := b.sections[section]; !ok {
		// Caller-supplied names never become label values.
		label = unknownSection
	}
	metrics.BrowseTotal.WithLabelValues(label, env.Status).Inc()
	b.obs.RecordRequest(ctx, "browse", env.Status, elapsed, env.Count)
	return env
}

func (b *Browser) browse(ctx context.Context, section string, age *int, region string) ([]models.Opportunity, error) {
	store, ok := b.sections[section]
	if !ok {
		return nil, apperrors.NewValidationError("section", fmt.Sprintf("unknown section %q", section))
	}
	if age == nil {
		return nil, apperrors.NewValidationError("age", "is required")
	}
	if *age < minAge || *age > maxAge {
		return nil, apperrors.NewValidationError("age", fmt.Sprintf("must be between %d and %d, got %d", minAge, maxAge, *age))
	}

	records, err := findWithTimeout(ctx, store, b.builder.Filter(*age, region, false), b.policy.StoreTimeout)
	if err != nil {
		return nil, err
	}
	if b.policy.StripEmbeddings {
		for i := range records {
			records[i].Embedding = nil
		}
	}
	return records, nil
}
