// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Server      ServerConfig            `mapstructure:"server"`
	Camunda     CamundaConfig           `mapstructure:"camunda"`
	Catalog     CatalogConfig           `mapstructure:"catalog"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Embedding   EmbeddingConfig         `mapstructure:"embedding"`
	Recommender RecommenderConfig       `mapstructure:"recommender"`
	Workers     map[string]WorkerConfig `mapstructure:"workers"`
	Logging     LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address            string   `mapstructure:"address"`
	ReadTimeout        int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout       int      `mapstructure:"write_timeout"` // milliseconds
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	RateLimit struct {
		Requests int `mapstructure:"requests"` // per window per client IP, 0 disables
		Window   int `mapstructure:"window"`   // milliseconds
	} `mapstructure:"rate_limit"`
}

// CamundaConfig is optional; workers are only registered when BrokerAddress is set.
type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// Catalog backends.
const (
	BackendMemory        = "memory"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
	BackendMongoDB       = "mongodb"
)

// CatalogConfig selects the store backend and names the collections it reads.
// Collection names are table names for postgres and index names for elasticsearch.
type CatalogConfig struct {
	Backend       string            `mapstructure:"backend"`
	Opportunities string            `mapstructure:"opportunities"`
	Sections      map[string]string `mapstructure:"sections"`
	SeedFile      string            `mapstructure:"seed_file"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MongoDB       MongoDBConfig       `mapstructure:"mongodb"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// RedisConfig backs the embedding cache. An empty Address disables the cache.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// Embedding providers.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds

	RateLimit struct {
		PerSecond float64 `mapstructure:"per_second"` // 0 disables
		Burst     int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Breaker struct {
		Enabled          bool   `mapstructure:"enabled"`
		FailureThreshold uint32 `mapstructure:"failure_threshold"`
		OpenTimeout      int    `mapstructure:"open_timeout"` // milliseconds
	} `mapstructure:"breaker"`

	CacheTTL int `mapstructure:"cache_ttl"` // seconds, 0 disables
}

// RecommenderConfig holds the ranking policy knobs.
type RecommenderConfig struct {
	HomeCountry      string   `mapstructure:"home_country"`
	SubRegions       []string `mapstructure:"sub_regions"`
	DefaultAge       int      `mapstructure:"default_age"`
	DefaultInterests []string `mapstructure:"default_interests"`
	DefaultTopK      int      `mapstructure:"default_top_k"`
	MaxTopK          int      `mapstructure:"max_top_k"`
	StoreTimeout     int      `mapstructure:"store_timeout"`  // milliseconds
	SlowThreshold    int      `mapstructure:"slow_threshold"` // milliseconds
	StrictIntegrity  bool     `mapstructure:"strict_integrity"`
	StripEmbeddings  bool     `mapstructure:"strip_embeddings"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
