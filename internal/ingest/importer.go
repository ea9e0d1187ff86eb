// Package ingest loads validated catalog records into a store, computing
// embeddings for records that arrive without one.
package ingest

import (
	"context"
	"fmt"
	"time"

	"opportunity-recommender/internal/catalog"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/embedding"
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

const defaultBatchSize = 500

type Report struct {
	Received int `json:"received"`
	Embedded int `json:"embedded"`
	Upserted int `json:"upserted"`
}

type Importer struct {
	embedder  embedding.Embedder
	batchSize int
	logger    logger.Logger
}

// NewImporter returns an importer. emb may be nil when records are never
// embedded on the way in.
func NewImporter(emb embedding.Embedder, log logger.Logger) *Importer {
	return &Importer{
		embedder:  emb,
		batchSize: defaultBatchSize,
		logger:    log.WithFields(map[string]interface{}{"component": "ingest"}),
	}
}

// EmbedMissing computes an embedding for every record that has none, in
// place. It returns how many records were embedded.
func (i *Importer) EmbedMissing(ctx context.Context, records []models.Opportunity) (int, error) {
	if i.embedder == nil {
		return 0, fmt.Errorf("no embedder configured")
	}

	embedded := 0
	for idx := range records {
		rec := &records[idx]
		if rec.HasEmbedding() {
			if len(rec.Embedding) != i.embedder.Dimension() {
				i.logger.Warn("stored embedding dimension differs from provider", map[string]interface{}{
					"recordId":  rec.ID,
					"dimension": len(rec.Embedding),
					"expected":  i.embedder.Dimension(),
				})
			}
			continue
		}

		text := recommender.RecordText(rec.Title, rec.Description, rec.InterestTags, rec.Type, rec.Region)
		vec, err := i.embedder.Embed(ctx, text)
		if err != nil {
			return embedded, fmt.Errorf("embed record %s: %w", rec.ID, err)
		}
		rec.Embedding = vec
		embedded++
	}
	return embedded, nil
}

// Import upserts records by id in batches. With embed set, missing
// embeddings are computed first.
func (i *Importer) Import(ctx context.Context, store catalog.Store, records []models.Opportunity, embed bool) (Report, error) {
	start := time.Now()
	report := Report{Received: len(records)}

	if embed {
		n, err := i.EmbedMissing(ctx, records)
		report.Embedded = n
		if err != nil {
			return report, err
		}
	}

	for lo := 0; lo < len(records); lo += i.batchSize {
		hi := lo + i.batchSize
		if hi > len(records) {
			hi = len(records)
		}
		if err := store.Upsert(ctx, records[lo:hi]); err != nil {
			return report, fmt.Errorf("upsert records %d-%d: %w", lo, hi-1, err)
		}
		report.Upserted = hi
	}

	i.logger.Info("catalog import finished", map[string]interface{}{
		"backend":    store.Backend(),
		"received":   report.Received,
		"embedded":   report.Embedded,
		"upserted":   report.Upserted,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return report, nil
}
