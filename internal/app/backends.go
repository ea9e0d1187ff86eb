// Package app assembles the recommender from configuration: it connects
// the configured catalog backend and cache, then builds the embedder,
// stores, service and browser shared by the server and the tools.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"opportunity-recommender/internal/catalog"
	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/database"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/models"
)

const (
	connectAttempts = 10
	connectDelay    = 2 * time.Second
)

// Backends holds the connections opened for one configuration. Only the
// catalog backend in use is set; Redis is nil when the cache is disabled
// or unreachable.
type Backends struct {
	Postgres      *database.PostgresClient
	Elasticsearch *database.ElasticsearchClient
	Mongo         *database.MongoClient
	Redis         *database.RedisClient

	logger logger.Logger
}

// Connect opens the configured catalog backend, retrying with backoff. A
// redis failure only disables the embedding cache.
func Connect(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backends, error) {
	b := &Backends{logger: log}

	var err error
	switch cfg.Catalog.Backend {
	case config.BackendPostgres:
		err = RetryWithBackoff(ctx, func() error {
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			b.Postgres = pg
			return nil
		}, connectAttempts, connectDelay, log, "PostgreSQL connection")

	case config.BackendElasticsearch:
		err = RetryWithBackoff(ctx, func() error {
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(ctx); err != nil {
				return err
			}
			b.Elasticsearch = es
			return nil
		}, connectAttempts, connectDelay, log, "Elasticsearch connection")

	case config.BackendMongoDB:
		err = RetryWithBackoff(ctx, func() error {
			mc, err := database.NewMongo(ctx, cfg.Database.MongoDB)
			if err != nil {
				return err
			}
			if err := mc.Ping(ctx); err != nil {
				_ = mc.Close(ctx)
				return err
			}
			b.Mongo = mc
			return nil
		}, connectAttempts, connectDelay, log, "MongoDB connection")

	case config.BackendMemory:
	default:
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownBackend, cfg.Catalog.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Info("catalog backend ready", map[string]interface{}{"backend": cfg.Catalog.Backend})

	if cfg.Database.Redis.Address != "" && cfg.Embedding.CacheTTL > 0 {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err == nil {
			err = rc.Ping(ctx)
		}
		if err != nil {
			log.Warn("redis unavailable, embedding cache disabled", map[string]interface{}{"error": err})
		} else {
			b.Redis = rc
		}
	}

	return b, nil
}

// RedisClient is nil when the embedding cache is disabled.
func (b *Backends) RedisClient() *redis.Client {
	if b.Redis == nil {
		return nil
	}
	return b.Redis.Client
}

// CatalogClients exposes the raw handles the catalog factory needs.
func (b *Backends) CatalogClients(seed map[string][]models.Opportunity) catalog.Clients {
	clients := catalog.Clients{Seed: seed}
	if b.Postgres != nil {
		clients.Postgres = b.Postgres.DB
	}
	if b.Elasticsearch != nil {
		clients.Elasticsearch = b.Elasticsearch.Client
	}
	if b.Mongo != nil {
		clients.Mongo = b.Mongo.Database
	}
	return clients
}

// Checks returns one readiness probe per open connection.
func (b *Backends) Checks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if b.Postgres != nil {
		checks["postgres"] = b.Postgres.Ping
	}
	if b.Elasticsearch != nil {
		checks["elasticsearch"] = b.Elasticsearch.Ping
	}
	if b.Mongo != nil {
		checks["mongodb"] = b.Mongo.Ping
	}
	if b.Redis != nil {
		checks["redis"] = b.Redis.Ping
	}
	return checks
}

func (b *Backends) Close(ctx context.Context) {
	if b.Postgres != nil {
		if err := b.Postgres.Close(); err != nil {
			b.logger.Error("error closing postgres", map[string]interface{}{"error": err})
		}
	}
	if b.Mongo != nil {
		if err := b.Mongo.Close(ctx); err != nil {
			b.logger.Error("error closing mongodb", map[string]interface{}{"error": err})
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			b.logger.Error("error closing redis", map[string]interface{}{"error": err})
		}
	}
}
