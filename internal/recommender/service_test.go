package recommender

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-recommender/internal/catalog"
	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/models"
)

// ==========================
// Test Helpers
// ==========================

// stubEmbedder returns vec for every text and remembers the last text.
type stubEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	delay time.Duration
	texts []string
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return len(s.vec) }
func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) lastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[len(s.texts)-1]
}

// failingStore fails every Find, optionally after blocking until ctx ends.
type failingStore struct {
	err   error
	block bool
}

func (f *failingStore) Backend() string { return "failing" }
func (f *failingStore) Find(ctx context.Context, _ catalog.Filter) ([]models.Opportunity, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, f.err
}
func (f *failingStore) Upsert(context.Context, []models.Opportunity) error { return f.err }

func opp(id, region string, ageMin, ageMax int, embedding ...float32) models.Opportunity {
	return models.Opportunity{
		ID:        id,
		Title:     "title " + id,
		Region:    region,
		AgeMin:    models.IntPtr(ageMin),
		AgeMax:    models.IntPtr(ageMax),
		Embedding: embedding,
	}
}

func newService(t *testing.T, emb *stubEmbedder, store catalog.Store, policy Policy) *Service {
	log := logger.NewTestLogger(t)
	return NewService(NewRanker(emb, store, policy, log), nil, log)
}

func resultIDs(env Envelope[models.RankedOpportunity]) []string {
	out := make([]string, len(env.Data))
	for i, r := range env.Data {
		out[i] = r.ID
	}
	return out
}

// ==========================
// Concrete scenarios
// ==========================

func TestRecommend_SingleMatch(t *testing.T) {
	store := catalog.NewMemory(opp("a", "India", 10, 15, 1, 0))
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc := newService(t, emb, store, Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), Region: "India", Interests: []string{"x"}, TopK: 5})

	require.Equal(t, StatusSuccess, env.Status, env.Message)
	assert.Equal(t, 1, env.Count)
	assert.InDelta(t, 1.0, env.Data[0].Score, 1e-9)
	assert.Equal(t, "1", env.Data[0].StoreID)
	assert.Equal(t, "x age 12 region India", emb.lastText())
	assert.NotEmpty(t, env.RequestID)
}

func TestRecommend_RequestIDFromContext(t *testing.T) {
	store := catalog.NewMemory(opp("a", "India", 10, 15, 1, 0))
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{})
	ctx := WithRequestID(context.Background(), "req-42")

	env := svc.Recommend(ctx, Query{Age: models.IntPtr(12), Interests: []string{"x"}, TopK: 5})
	assert.Equal(t, "req-42", env.RequestID)

	env = svc.Recommend(ctx, Query{Age: models.IntPtr(12), TopK: 0})
	require.Equal(t, StatusError, env.Status)
	assert.Equal(t, "req-42", env.RequestID)
}

func TestRecommend_AgeOutOfRange(t *testing.T) {
	store := catalog.NewMemory(opp("a", "India", 10, 15, 1, 0))
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(30), Region: "India", Interests: []string{"x"}, TopK: 5})

	require.Equal(t, StatusSuccess, env.Status)
	assert.Equal(t, 0, env.Count)
	assert.Empty(t, env.Data)
}

func TestRecommend_TruncatesToTopK(t *testing.T) {
	store := catalog.NewMemory(
		opp("low", "India", 10, 15, 0.3, float32(math.Sqrt(1-0.09))),
		opp("high", "India", 10, 15, 0.9, float32(math.Sqrt(1-0.81))),
	)
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 1})

	require.Equal(t, StatusSuccess, env.Status)
	require.Equal(t, 1, env.Count)
	assert.Equal(t, "high", env.Data[0].ID)
	assert.InDelta(t, 0.9, env.Data[0].Score, 1e-6)
}

func TestRecommend_InvalidTopK(t *testing.T) {
	store := catalog.NewMemory(opp("a", "India", 10, 15, 1, 0))
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc := newService(t, emb, store, Policy{})

	for _, k := range []int{0, -1} {
		env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: k})

		assert.Equal(t, StatusError, env.Status)
		assert.Equal(t, string(apperrors.ErrCodeValidation), env.Code)
		assert.Contains(t, env.Message, "top_k")
		assert.Nil(t, env.Data)
	}
	assert.Empty(t, emb.texts, "provider must not be called for invalid input")
}

func TestRecommend_RecordWithoutEmbeddingNeverCandidate(t *testing.T) {
	store := catalog.NewMemory(
		opp("embedded", "India", 10, 15, 1, 0),
		opp("bare", "India", 10, 15),
	)
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 10})

	assert.Equal(t, []string{"embedded"}, resultIDs(env))
}

func TestRecommend_RegionFallback(t *testing.T) {
	store := catalog.NewMemory(
		opp("india", "India", 10, 15, 1, 0),
		opp("kerala", "Kerala", 10, 15, 1, 0),
		opp("delhi", "Delhi", 10, 15, 1, 0),
	)
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{})
	age := models.IntPtr(12)

	home := svc.Recommend(context.Background(), Query{Age: age, Region: "", TopK: 10})
	assert.ElementsMatch(t, []string{"india", "kerala", "delhi"}, resultIDs(home))

	kerala := svc.Recommend(context.Background(), Query{Age: age, Region: "Kerala", TopK: 10})
	assert.ElementsMatch(t, []string{"india", "kerala"}, resultIDs(kerala))

	lower := svc.Recommend(context.Background(), Query{Age: age, Region: "kerala", TopK: 10})
	assert.ElementsMatch(t, []string{"india", "kerala"}, resultIDs(lower))
}

// ==========================
// Properties
// ==========================

func propertyCatalog() *catalog.Memory {
	return catalog.NewMemory(
		opp("r1", "India", 5, 10, 1, 0, 0),
		opp("r2", "India", 10, 20, 0, 1, 0),
		opp("r3", "Kerala", 12, 12, 0.5, 0.5, 0),
		opp("r4", "Delhi", 0, 100, -1, 0, 0),
		opp("r5", "India", 13, 30, 0.2, 0.1, 0.9),
		opp("r6", "India", 0, 100, 0, 0, 0),
		opp("r7", "India", 11, 14, 0.5, 0.5, 0),
		opp("r8", "Goa", 12, 40, 0.9, -0.1, 0.3),
	)
}

func TestRecommend_Properties(t *testing.T) {
	store := propertyCatalog()
	emb := &stubEmbedder{vec: []float32{0.7, 0.7, 0.1}}
	svc := newService(t, emb, store, Policy{})

	for _, age := range []int{0, 5, 10, 12, 13, 20, 50} {
		for _, region := range []string{"", "India", "Kerala", "Delhi", "Goa", "Atlantis"} {
			for _, topK := range []int{1, 3, 100} {
				q := Query{Age: models.IntPtr(age), Region: region, Interests: []string{"x"}, TopK: topK}
				env := svc.Recommend(context.Background(), q)
				require.Equal(t, StatusSuccess, env.Status, env.Message)

				candidates, err := store.Find(context.Background(),
					NewQueryBuilder(Policy{}).Filter(age, region, true))
				require.NoError(t, err)

				// P5
				assert.Equal(t, min(topK, len(candidates)), env.Count)

				for i, r := range env.Data {
					// P1
					assert.LessOrEqual(t, *r.AgeMin, age)
					assert.GreaterOrEqual(t, *r.AgeMax, age)
					// P2
					if region != "" && region != "India" && r.Region != "India" {
						assert.Equal(t, region, r.Region)
					}
					// P3
					assert.False(t, math.IsNaN(r.Score) || math.IsInf(r.Score, 0))
					assert.GreaterOrEqual(t, r.Score, -1.0)
					assert.LessOrEqual(t, r.Score, 1.0)
					// P4
					if i > 0 {
						assert.GreaterOrEqual(t, env.Data[i-1].Score, r.Score)
					}
				}

				// P7
				again := svc.Recommend(context.Background(), q)
				assert.Equal(t, resultIDs(env), resultIDs(again))
			}
		}
	}
}

func TestRecommend_EmptyCatalog(t *testing.T) {
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, catalog.NewMemory(), Policy{})

	env := svc.Recommend(context.Background(), Query{TopK: 5})

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []interface{}{}, body["data"])
}

func TestRecommend_TiesKeepStoreOrder(t *testing.T) {
	store := catalog.NewMemory(
		opp("first", "India", 10, 15, 1, 0),
		opp("better", "India", 10, 15, 1, 1),
		opp("second", "India", 10, 15, 2, 0),
		opp("third", "India", 10, 15, 0.5, 0),
	)
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 10})

	assert.Equal(t, []string{"first", "second", "third", "better"}, resultIDs(env))
}

func TestRecommend_DefaultsWhenAgeMissing(t *testing.T) {
	store := catalog.NewMemory(opp("young-adult", "India", 18, 25, 1, 0))
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc := newService(t, emb, store, Policy{})

	env := svc.Recommend(context.Background(), Query{TopK: 5})

	assert.Equal(t, []string{"young-adult"}, resultIDs(env))
	assert.Equal(t, "Drawing Tech Painting Teaching Hairstylist age 20 region India", emb.lastText())

	svc.Recommend(context.Background(), Query{Interests: []string{"Coding"}, TopK: 5})
	assert.Equal(t, "Coding age 20 region India", emb.lastText())
}

// ==========================
// Integrity policy
// ==========================

func badCatalog() *catalog.Memory {
	return catalog.NewMemory(
		opp("good", "India", 10, 15, 1, 0),
		opp("stale", "India", 10, 15, 1, 0, 0),
		opp("nan", "India", 10, 15, float32(math.NaN()), 0),
		opp("good-2", "India", 10, 15, 0, 1),
	)
}

func TestRecommend_SkipsBadRecords(t *testing.T) {
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, badCatalog(), Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 10})

	require.Equal(t, StatusSuccess, env.Status)
	assert.Equal(t, []string{"good", "good-2"}, resultIDs(env))
}

func TestRecommend_StrictIntegrityAborts(t *testing.T) {
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, badCatalog(), Policy{StrictIntegrity: true})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 10})

	assert.Equal(t, StatusError, env.Status)
	assert.Equal(t, string(apperrors.ErrCodeDataIntegrity), env.Code)
	assert.Contains(t, env.Message, "stale")
	assert.Empty(t, env.Data)
}

func TestRank_StrictIntegrityNamesRecord(t *testing.T) {
	r := NewRanker(&stubEmbedder{vec: []float32{1, 0}}, badCatalog(), Policy{StrictIntegrity: true}, logger.NewTestLogger(t))

	_, err := r.Rank(context.Background(), Query{Age: models.IntPtr(12), TopK: 10})

	require.Error(t, err)
	assert.True(t, apperrors.IsDataIntegrity(err))
	assert.Equal(t, "stale", apperrors.AsStandardError(err).Metadata["recordId"])
}

// ==========================
// Collaborator failures
// ==========================

func TestRecommend_UpstreamFailure(t *testing.T) {
	store := catalog.NewMemory(opp("a", "India", 10, 15, 1, 0))
	svc := newService(t, &stubEmbedder{err: errors.New("429 quota exceeded")}, store, Policy{})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 5})

	assert.Equal(t, StatusError, env.Status)
	assert.Equal(t, string(apperrors.ErrCodeUpstream), env.Code)
	assert.Contains(t, env.Message, "quota exceeded")
}

func TestRank_UpstreamTimeout(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}, delay: time.Second}
	r := NewRanker(emb, catalog.NewMemory(), Policy{EmbedTimeout: 20 * time.Millisecond}, logger.NewTestLogger(t))

	_, err := r.Rank(context.Background(), Query{TopK: 5})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUpstreamTimeout, apperrors.AsStandardError(err).Code)
	assert.True(t, apperrors.IsUpstream(err))
}

func TestRank_UpstreamMalformedVector(t *testing.T) {
	r := NewRanker(&stubEmbedder{vec: []float32{}}, catalog.NewMemory(), Policy{}, logger.NewTestLogger(t))

	_, err := r.Rank(context.Background(), Query{TopK: 5})
	assert.True(t, apperrors.IsUpstream(err))
}

func TestRank_StoreFailure(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	r := NewRanker(&stubEmbedder{vec: []float32{1, 0}}, store, Policy{}, logger.NewTestLogger(t))

	_, err := r.Rank(context.Background(), Query{TopK: 5})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStore, apperrors.AsStandardError(err).Code)
	assert.Equal(t, "failing", apperrors.AsStandardError(err).Metadata["backend"])
}

func TestRank_StoreTimeout(t *testing.T) {
	store := &failingStore{block: true}
	r := NewRanker(&stubEmbedder{vec: []float32{1, 0}}, store, Policy{StoreTimeout: 20 * time.Millisecond}, logger.NewTestLogger(t))

	_, err := r.Rank(context.Background(), Query{TopK: 5})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStoreTimeout, apperrors.AsStandardError(err).Code)
}

func TestRecommend_StripEmbeddings(t *testing.T) {
	store := catalog.NewMemory(opp("a", "India", 10, 15, 1, 0))
	svc := newService(t, &stubEmbedder{vec: []float32{1, 0}}, store, Policy{StripEmbeddings: true})

	env := svc.Recommend(context.Background(), Query{Age: models.IntPtr(12), TopK: 5})

	require.Equal(t, 1, env.Count)
	assert.Nil(t, env.Data[0].Embedding)
}

func TestEnvelope_ErrorShape(t *testing.T) {
	env := ErrorEnvelope[models.RankedOpportunity](apperrors.NewValidationError("top_k", "must be positive"), "req-1")

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.NotContains(t, body, "data")
	assert.NotContains(t, body, "count")
}
