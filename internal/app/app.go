package app

import (
	"context"
	"fmt"

	"opportunity-recommender/internal/catalog"
	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/observability"
	"opportunity-recommender/internal/embedding"
	"opportunity-recommender/internal/ingest"
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

// App is the assembled recommender.
type App struct {
	Embedder embedding.Embedder
	Factory  *catalog.Factory
	Service  *recommender.Service
	Browser  *recommender.Browser
	Importer *ingest.Importer
	Obs      *observability.Observability
}

// Build wires the embedder, stores, ranker, service and browser. For the
// memory backend the seed file is loaded and embedded here.
func Build(ctx context.Context, cfg *config.Config, backends *Backends, log logger.Logger) (*App, error) {
	rdb := backends.RedisClient()

	emb, err := embedding.New(cfg.Embedding, rdb, log)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	importer := ingest.NewImporter(emb, log)

	var seed map[string][]models.Opportunity
	if cfg.Catalog.Backend == config.BackendMemory && cfg.Catalog.SeedFile != "" {
		seed, err = catalog.LoadSeedFile(cfg.Catalog.SeedFile)
		if err != nil {
			return nil, err
		}
		n, err := importer.EmbedMissing(ctx, seed[cfg.Catalog.Opportunities])
		if err != nil {
			return nil, fmt.Errorf("embed seed records: %w", err)
		}
		log.Info("seed catalog loaded", map[string]interface{}{
			"file":        cfg.Catalog.SeedFile,
			"collections": len(seed),
			"embedded":    n,
		})
	}

	factory := catalog.NewFactory(cfg.Catalog.Backend, backends.CatalogClients(seed), log)

	store, err := factory.Open(cfg.Catalog.Opportunities)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Catalog.Opportunities, err)
	}

	sections := make(map[string]catalog.Store, len(cfg.Catalog.Sections))
	for name, collection := range cfg.Catalog.Sections {
		s, err := factory.Open(collection)
		if err != nil {
			return nil, fmt.Errorf("open section %s: %w", name, err)
		}
		sections[name] = s
	}

	obs := observability.New(cfg.App.Name, log)
	policy := recommender.PolicyFromConfig(cfg.Recommender, cfg.Embedding)
	ranker := recommender.NewRanker(emb, store, policy, log)

	return &App{
		Embedder: emb,
		Factory:  factory,
		Service:  recommender.NewService(ranker, obs, log),
		Browser:  recommender.NewBrowser(sections, policy, obs, log),
		Importer: importer,
		Obs:      obs,
	}, nil
}
