package recommender

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-recommender/internal/catalog"
	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/metrics"
	"opportunity-recommender/internal/models"
)

func newBrowser(t *testing.T, policy Policy) *Browser {
	schemes := catalog.NewMemory(
		models.Opportunity{ID: "pm-scheme", Region: "India", AgeMin: models.IntPtr(18), AgeMax: models.IntPtr(60)},
		models.Opportunity{ID: "kerala-scheme", Region: "Kerala", AgeMin: models.IntPtr(18), AgeMax: models.IntPtr(60), Embedding: []float32{1}},
		models.Opportunity{ID: "delhi-scheme", Region: "Delhi", AgeMin: models.IntPtr(18), AgeMax: models.IntPtr(60)},
		models.Opportunity{ID: "open-ended", Region: "India", AgeMin: models.IntPtr(18)},
	)
	sports := catalog.NewMemory(
		models.Opportunity{ID: "khelo", Region: "India", AgeMin: models.IntPtr(10), AgeMax: models.IntPtr(17)},
	)

	return NewBrowser(map[string]catalog.Store{
		"schemes": schemes,
		"Sports":  sports,
		"broken":  &failingStore{err: errors.New("no route to host")},
	}, policy, nil, logger.NewTestLogger(t))
}

func browseIDs(env Envelope[models.Opportunity]) []string {
	out := make([]string, len(env.Data))
	for i, r := range env.Data {
		out[i] = r.ID
	}
	return out
}

func TestBrowse_FiltersByAgeAndRegion(t *testing.T) {
	b := newBrowser(t, Policy{})
	ctx := context.Background()

	env := b.Browse(ctx, "schemes", models.IntPtr(30), "Kerala")
	require.Equal(t, StatusSuccess, env.Status, env.Message)
	assert.Equal(t, []string{"pm-scheme", "kerala-scheme"}, browseIDs(env))

	env = b.Browse(ctx, "schemes", models.IntPtr(30), "")
	assert.Equal(t, []string{"pm-scheme", "kerala-scheme", "delhi-scheme"}, browseIDs(env))

	env = b.Browse(ctx, "SPORTS", models.IntPtr(12), "Goa")
	assert.Equal(t, []string{"khelo"}, browseIDs(env))

	env = b.Browse(ctx, "sports", models.IntPtr(30), "Goa")
	assert.Equal(t, StatusSuccess, env.Status)
	assert.Equal(t, 0, env.Count)
}

func TestBrowse_StripEmbeddings(t *testing.T) {
	b := newBrowser(t, Policy{StripEmbeddings: true})

	env := b.Browse(context.Background(), "schemes", models.IntPtr(30), "Kerala")

	require.Equal(t, 2, env.Count)
	assert.Nil(t, env.Data[1].Embedding)
}

func TestBrowse_Errors(t *testing.T) {
	b := newBrowser(t, Policy{})
	ctx := context.Background()

	tests := []struct {
		name    string
		section string
		age     *int
		code    apperrors.ErrorCode
	}{
		{"unknown section", "movies", models.IntPtr(20), apperrors.ErrCodeValidation},
		{"missing age", "schemes", nil, apperrors.ErrCodeValidation},
		{"negative age", "schemes", models.IntPtr(-4), apperrors.ErrCodeValidation},
		{"store failure", "broken", models.IntPtr(20), apperrors.ErrCodeStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := b.Browse(ctx, tt.section, tt.age, "India")
			assert.Equal(t, StatusError, env.Status)
			assert.Equal(t, string(tt.code), env.Code)
		})
	}
}

func TestBrowser_Sections(t *testing.T) {
	assert.Equal(t, []string{"broken", "schemes", "sports"}, newBrowser(t, Policy{}).Sections())
}

func TestBrowse_UnknownSectionsShareOneMetricSeries(t *testing.T) {
	b := newBrowser(t, Policy{})
	ctx := context.Background()

	// Warm the series a single unknown name may create.
	b.Browse(ctx, "warmup-unknown", models.IntPtr(20), "")
	before := testutil.CollectAndCount(metrics.BrowseTotal)
	unknownBefore := testutil.ToFloat64(metrics.BrowseTotal.WithLabelValues(unknownSection, StatusError))

	for i := 0; i < 100; i++ {
		env := b.Browse(ctx, fmt.Sprintf("made-up-%d", i), models.IntPtr(20), "")
		require.Equal(t, StatusError, env.Status)
	}

	assert.Equal(t, before, testutil.CollectAndCount(metrics.BrowseTotal))
	assert.Equal(t, unknownBefore+100, testutil.ToFloat64(metrics.BrowseTotal.WithLabelValues(unknownSection, StatusError)))
}

func TestBrowse_UsesRequestIDFromContext(t *testing.T) {
	b := newBrowser(t, Policy{})

	env := b.Browse(WithRequestID(context.Background(), "req-7"), "schemes", models.IntPtr(30), "")
	assert.Equal(t, "req-7", env.RequestID)

	env = b.Browse(context.Background(), "schemes", models.IntPtr(30), "")
	assert.NotEmpty(t, env.RequestID)
	assert.NotEqual(t, "req-7", env.RequestID)
}
