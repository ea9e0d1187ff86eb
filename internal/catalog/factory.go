package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"go.mongodb.org/mongo-driver/mongo"

	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/models"
)

// Clients holds the connected handles for whichever backend is configured.
// Only the one matching the backend needs to be set.
type Clients struct {
	Postgres      *sql.DB
	Elasticsearch *elasticsearch.Client
	Mongo         *mongo.Database
	Seed          map[string][]models.Opportunity
}

// Factory opens instrumented stores for named collections on one backend.
// Memory stores are created once per collection and shared.
type Factory struct {
	backend string
	clients Clients
	logger  logger.Logger

	mu     sync.Mutex
	memory map[string]*Memory
}

func NewFactory(backend string, clients Clients, log logger.Logger) *Factory {
	return &Factory{
		backend: backend,
		clients: clients,
		logger:  log,
		memory:  make(map[string]*Memory),
	}
}

func (f *Factory) Backend() string { return f.backend }

func (f *Factory) Open(collection string) (Store, error) {
	var (
		store Store
		err   error
	)

	switch f.backend {
	case config.BackendMemory, "":
		store = f.openMemory(collection)
	case config.BackendPostgres:
		store, err = NewPostgres(f.clients.Postgres, collection)
	case config.BackendElasticsearch:
		store, err = NewElasticsearch(f.clients.Elasticsearch, collection, f.logger)
	case config.BackendMongoDB:
		store, err = NewMongo(f.clients.Mongo, collection)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, f.backend)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(store, collection, f.logger), nil
}

// EnsureSchema prepares collection on backends that need a layout before
// the first write. Memory needs none.
func (f *Factory) EnsureSchema(ctx context.Context, collection string) error {
	var (
		store Store
		err   error
	)
	switch f.backend {
	case config.BackendMemory, "":
		return nil
	case config.BackendPostgres:
		store, err = NewPostgres(f.clients.Postgres, collection)
	case config.BackendElasticsearch:
		store, err = NewElasticsearch(f.clients.Elasticsearch, collection, f.logger)
	case config.BackendMongoDB:
		store, err = NewMongo(f.clients.Mongo, collection)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, f.backend)
	}
	if err != nil {
		return err
	}
	if se, ok := store.(schemaEnsurer); ok {
		return se.EnsureSchema(ctx)
	}
	return nil
}

func (f *Factory) openMemory(collection string) *Memory {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.memory[collection]; ok {
		return m
	}
	m := NewMemory(f.clients.Seed[collection]...)
	f.memory[collection] = m
	return m
}
