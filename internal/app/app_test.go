package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-recommender/internal/catalog"
	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/embedding"
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewTestLogger(t)
	attempts := 0

	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5, time.Millisecond, log, "flaky")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = RetryWithBackoff(context.Background(), func() error {
		attempts++
		return errors.New("down")
	}, 3, time.Millisecond, log, "broken")
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "broken failed after 3 attempts")
}

func TestRetryWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, func() error { return errors.New("down") }, 5, time.Hour, logger.NewTestLogger(t), "op")
	assert.ErrorIs(t, err, context.Canceled)
}

func memoryConfig(t *testing.T) *config.Config {
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{
		"opportunities": [
			{"id": "robotics", "title": "Robotics olympiad", "interest_tags": "robotics engineering", "age_min": 12, "age_max": 18, "region": "India"},
			{"id": "dance", "title": "Dance festival", "interest_tags": "dance music", "age_min": 12, "age_max": 18, "region": "Kerala"}
		],
		"schemes": [
			{"id": "s1", "title": "Kerala youth scheme", "age_min": 14, "age_max": 25, "region": "Kerala"}
		]
	}`), 0o644))

	return &config.Config{
		App:       config.AppConfig{Name: "opportunity-recommender-test"},
		Catalog:   config.CatalogConfig{Backend: config.BackendMemory, Opportunities: "opportunities", Sections: map[string]string{"schemes": "schemes"}, SeedFile: seed},
		Embedding: config.EmbeddingConfig{Provider: config.ProviderLocal, Dimension: 256},
	}
}

func TestBuild_MemorySeed(t *testing.T) {
	cfg := memoryConfig(t)
	log := logger.NewTestLogger(t)
	ctx := context.Background()

	backends, err := Connect(ctx, cfg, log)
	require.NoError(t, err)
	defer backends.Close(ctx)
	assert.Empty(t, backends.Checks())

	a, err := Build(ctx, cfg, backends, log)
	require.NoError(t, err)
	defer a.Obs.Shutdown()

	env := a.Service.Recommend(ctx, recommender.Query{Age: models.IntPtr(15), Interests: []string{"robotics"}, TopK: 5})
	require.Equal(t, recommender.StatusSuccess, env.Status, env.Message)
	require.Equal(t, 2, env.Count)
	assert.Equal(t, "robotics", env.Data[0].ID)

	listing := a.Browser.Browse(ctx, "schemes", models.IntPtr(16), "Kerala")
	require.Equal(t, recommender.StatusSuccess, listing.Status)
	assert.Equal(t, 1, listing.Count)
}

func TestConnect_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := memoryConfig(t)
	cfg.Database.Redis.Address = mr.Addr()
	cfg.Embedding.CacheTTL = 60
	log := logger.NewTestLogger(t)
	ctx := context.Background()

	backends, err := Connect(ctx, cfg, log)
	require.NoError(t, err)
	defer backends.Close(ctx)
	require.NotNil(t, backends.RedisClient())
	assert.Contains(t, backends.Checks(), "redis")

	a, err := Build(ctx, cfg, backends, log)
	require.NoError(t, err)
	defer a.Obs.Shutdown()

	_, ok := a.Embedder.(*embedding.Cached)
	assert.True(t, ok)
}

func TestConnect_RedisDownDisablesCache(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Database.Redis.Address = "127.0.0.1:1"
	cfg.Embedding.CacheTTL = 60

	backends, err := Connect(context.Background(), cfg, logger.NewTestLogger(t))
	require.NoError(t, err)
	assert.Nil(t, backends.RedisClient())
}

func TestConnect_UnknownBackend(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Catalog.Backend = "cassandra"

	_, err := Connect(context.Background(), cfg, logger.NewTestLogger(t))
	assert.Error(t, err)
}

func TestRepositorySeedFileIsValid(t *testing.T) {
	seed, err := catalog.LoadSeedFile(filepath.Join("..", "..", "configs", "seed.json"))
	require.NoError(t, err)

	for _, collection := range []string{"opportunities", "schemes", "scholarships", "sports", "motivation", "health_section"} {
		assert.NotEmpty(t, seed[collection], collection)
	}
}
