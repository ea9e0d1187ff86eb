package browseopportunities

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity-recommender/internal/catalog"
	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

// ==========================
// Test Helpers
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_BrowseOpportunities",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

type failingStore struct{}

func (failingStore) Backend() string { return "postgres" }

func (failingStore) Find(context.Context, catalog.Filter) ([]models.Opportunity, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Upsert(context.Context, []models.Opportunity) error { return nil }

func newHandler(t *testing.T, sections map[string]catalog.Store) *Handler {
	log := logger.NewTestLogger(t)
	browser := recommender.NewBrowser(sections, recommender.Policy{}, nil, log)
	return NewHandler(&Config{Timeout: time.Second}, browser, log)
}

func schemes() catalog.Store {
	return catalog.NewMemory(
		models.Opportunity{ID: "s1", Title: "Kerala youth scheme", AgeMin: models.IntPtr(14), AgeMax: models.IntPtr(25), Region: "Kerala"},
		models.Opportunity{ID: "s2", Title: "National scheme", AgeMin: models.IntPtr(18), AgeMax: models.IntPtr(30), Region: "India"},
		models.Opportunity{ID: "s3", Title: "Goa scheme", AgeMin: models.IntPtr(10), AgeMax: models.IntPtr(20), Region: "Goa"},
	)
}

// ==========================
// Execute
// ==========================

func TestExecute_FromJobVariables(t *testing.T) {
	job := createMockJob(7, map[string]interface{}{
		"section": "Schemes",
		"age":     19,
		"region":  "kerala",
	})

	var input Input
	require.NoError(t, json.Unmarshal([]byte(job.Variables), &input))

	out, err := newHandler(t, map[string]catalog.Store{"schemes": schemes()}).Execute(context.Background(), &input)
	require.NoError(t, err)

	env := out.Listings
	assert.Equal(t, recommender.StatusSuccess, env.Status)
	require.Equal(t, 2, env.Count)
	assert.Equal(t, "s1", env.Data[0].ID)
	assert.Equal(t, "s2", env.Data[1].ID)
}

func TestExecute_ValidationIsCompleted(t *testing.T) {
	h := newHandler(t, map[string]catalog.Store{"schemes": schemes()})

	tests := []struct {
		name  string
		input Input
	}{
		{"unknown section", Input{Section: "sports", Age: models.IntPtr(15)}},
		{"missing age", Input{Section: "schemes"}},
		{"age out of range", Input{Section: "schemes", Age: models.IntPtr(200)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Execute(context.Background(), &tt.input)
			require.NoError(t, err)
			assert.Equal(t, recommender.StatusError, out.Listings.Status)
			assert.Equal(t, string(apperrors.ErrCodeValidation), out.Listings.Code)
		})
	}
}

func TestExecute_StoreFailureIsReturned(t *testing.T) {
	h := newHandler(t, map[string]catalog.Store{"schemes": failingStore{}})

	out, err := h.Execute(context.Background(), &Input{Section: "schemes", Age: models.IntPtr(15)})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, apperrors.IsStore(err))
}

func TestExecute_NilInput(t *testing.T) {
	h := newHandler(t, nil)
	_, err := h.Execute(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNilInput))
}

func TestOutput_Variables(t *testing.T) {
	out, err := newHandler(t, map[string]catalog.Store{"schemes": schemes()}).
		Execute(context.Background(), &Input{Section: "schemes", Age: models.IntPtr(40)})
	require.NoError(t, err)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"listings":{"status":"success","count":0,"data":[],"request_id":"`+out.Listings.RequestID+`"}}`, string(raw))
}
