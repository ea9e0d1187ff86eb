// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml when
// present, expands ${ENV} placeholders and applies defaults.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env vars when the file left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case ProviderGemini:
			cfg.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
		case ProviderOpenAI:
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if cfg.Database.MongoDB.URI == "" {
		cfg.Database.MongoDB.URI = os.Getenv("MONGO_URI")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "opportunity-recommender"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if len(cfg.Server.CORSAllowedOrigins) == 0 {
		cfg.Server.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Server.RateLimit.Requests > 0 && cfg.Server.RateLimit.Window == 0 {
		cfg.Server.RateLimit.Window = 60000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = BackendMemory
	}
	if cfg.Catalog.Opportunities == "" {
		cfg.Catalog.Opportunities = "opportunities"
	}
	if cfg.Catalog.Sections == nil {
		cfg.Catalog.Sections = map[string]string{
			"schemes":      "schemes",
			"scholarships": "scholarships",
			"sports":       "sports",
			"motivation":   "motivation",
			"healthcare":   "health_section",
		}
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL != "" {
		cfg.Database.Elasticsearch.Addresses = []string{cfg.Database.Elasticsearch.URL}
	}
	if cfg.Database.MongoDB.Database == "" {
		cfg.Database.MongoDB.Database = "prerna"
	}
	if cfg.Database.MongoDB.Timeout == 0 {
		cfg.Database.MongoDB.Timeout = 10000
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderLocal
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = defaultDimension(cfg.Embedding.Provider)
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10000
	}
	if cfg.Embedding.Breaker.FailureThreshold == 0 {
		cfg.Embedding.Breaker.FailureThreshold = 5
	}
	if cfg.Embedding.Breaker.OpenTimeout == 0 {
		cfg.Embedding.Breaker.OpenTimeout = 30000
	}
	if cfg.Embedding.RateLimit.PerSecond > 0 && cfg.Embedding.RateLimit.Burst == 0 {
		cfg.Embedding.RateLimit.Burst = 1
	}

	if cfg.Recommender.HomeCountry == "" {
		cfg.Recommender.HomeCountry = "India"
	}
	if cfg.Recommender.DefaultAge == 0 {
		cfg.Recommender.DefaultAge = 20
	}
	if cfg.Recommender.DefaultTopK == 0 {
		cfg.Recommender.DefaultTopK = 5
	}
	if cfg.Recommender.MaxTopK == 0 {
		cfg.Recommender.MaxTopK = 100
	}
	if cfg.Recommender.StoreTimeout == 0 {
		cfg.Recommender.StoreTimeout = 5000
	}
	if cfg.Recommender.SlowThreshold == 0 {
		cfg.Recommender.SlowThreshold = 500
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func defaultDimension(provider string) int {
	switch provider {
	case ProviderOpenAI:
		return 1536
	case ProviderGemini:
		return 768
	default:
		return 384
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Catalog.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	case BackendElasticsearch:
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses or url is required")
		}
	case BackendMongoDB:
		if cfg.Database.MongoDB.URI == "" {
			return fmt.Errorf("database.mongodb.uri is required")
		}
	default:
		return fmt.Errorf("catalog.backend %q is not supported", cfg.Catalog.Backend)
	}

	switch cfg.Embedding.Provider {
	case ProviderLocal:
	case ProviderOpenAI, ProviderGemini:
		if cfg.Embedding.APIKey == "" && cfg.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.api_key is required for provider %s", cfg.Embedding.Provider)
		}
	default:
		return fmt.Errorf("embedding.provider %q is not supported", cfg.Embedding.Provider)
	}

	if cfg.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	if cfg.Recommender.DefaultTopK > cfg.Recommender.MaxTopK {
		return fmt.Errorf("recommender.default_top_k exceeds recommender.max_top_k")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
