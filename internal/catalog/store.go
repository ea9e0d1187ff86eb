// Package catalog reads and writes opportunity records across the supported
// store backends. Every backend applies the same filter semantics: inclusive
// age bounds (records missing either bound never match), case-insensitive
// exact region match, and an optional embedding-present constraint. Results
// come back in a stable store order.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/metrics"
	"opportunity-recommender/internal/models"
)

var (
	ErrUnknownBackend = errors.New("unknown catalog backend")
	ErrMissingClient  = errors.New("catalog backend client not configured")
	ErrMissingID      = errors.New("record id is required")
)

// Filter is the store predicate built by the recommender's query builder.
type Filter struct {
	Age              int
	Regions          []string // empty matches every region
	RequireEmbedding bool
}

// Store is a single collection of opportunity records.
type Store interface {
	Backend() string
	Find(ctx context.Context, f Filter) ([]models.Opportunity, error)
	Upsert(ctx context.Context, records []models.Opportunity) error
}

// schemaEnsurer is implemented by backends that need a table, index or
// collection layout before records are written.
type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// requireIDs rejects batches for backends that key upserts on id, where an
// empty id would collapse unrelated records into one.
func requireIDs(records []models.Opportunity) error {
	for i := range records {
		if strings.TrimSpace(records[i].ID) == "" {
			return fmt.Errorf("%w: record %d (%q)", ErrMissingID, i, records[i].Title)
		}
	}
	return nil
}

func (f Filter) matches(o *models.Opportunity) bool {
	if !o.EligibleAt(f.Age) {
		return false
	}
	if f.RequireEmbedding && !o.HasEmbedding() {
		return false
	}
	if len(f.Regions) == 0 {
		return true
	}
	for _, r := range f.Regions {
		if strings.EqualFold(strings.TrimSpace(o.Region), r) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// instrumented records query outcomes and latency for any backend.
type instrumented struct {
	Store
	collection string
	logger     logger.Logger
}

// Instrument wraps a store with metrics and debug logging.
func Instrument(s Store, collection string, log logger.Logger) Store {
	return &instrumented{
		Store:      s,
		collection: collection,
		logger: log.WithFields(map[string]interface{}{
			"component":  "catalog",
			"backend":    s.Backend(),
			"collection": collection,
		}),
	}
}

func (i *instrumented) Find(ctx context.Context, f Filter) ([]models.Opportunity, error) {
	start := time.Now()
	records, err := i.Store.Find(ctx, f)
	metrics.CatalogQueries.WithLabelValues(i.Backend(), metrics.StatusOf(err)).Inc()

	i.logger.Debug("catalog query", map[string]interface{}{
		"age":              f.Age,
		"regions":          len(f.Regions),
		"requireEmbedding": f.RequireEmbedding,
		"results":          len(records),
		"durationMs":       time.Since(start).Milliseconds(),
		"error":            err,
	})
	return records, err
}
