package recommendopportunities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "opportunity-recommender/internal/common/errors"
	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/common/metrics"
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

const (
	TaskType = "recommend-opportunities"
)

var (
	ErrNilInput = errors.New("input cannot be nil")
)

// Recommender is the part of recommender.Service the worker needs.
type Recommender interface {
	Recommend(ctx context.Context, q recommender.Query) recommender.Envelope[models.RankedOpportunity]
	DefaultTopK() int
}

type Handler struct {
	config       *Config
	service      Recommender
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, service Recommender, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      service,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.throwError(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		stdErr := apperrors.AsStandardError(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, stdErr)
		return
	}

	// The job deadline may be spent; reporting gets its own budget.
	sendCtx, sendCancel := context.WithTimeout(context.Background(), apperrors.CommandTimeout)
	defer sendCancel()
	h.completeJob(sendCtx, client, job, output)
}

// Execute runs one recommendation. Failures the engine should retry
// (upstream and store) are returned as errors; every other outcome,
// including validation failures, is carried in the envelope.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, ErrNilInput
	}

	topK := h.service.DefaultTopK()
	if input.TopK != nil {
		topK = *input.TopK
	}

	env := h.service.Recommend(ctx, recommender.Query{
		Age:       input.Age,
		Interests: input.Interests,
		Region:    input.Region,
		TopK:      topK,
	})

	if env.Err != nil && apperrors.IsRetryableErrorCode(env.Err.Code) {
		return nil, env.Err
	}

	return &Output{Recommendations: env}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		h.throwError(client, job, "INTERNAL_ERROR", fmt.Sprintf("encode output: %v", err))
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey": job.Key,
		"status": output.Recommendations.Status,
		"count":  output.Recommendations.Count,
	})
}

func (h *Handler) throwError(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	ctx, cancel := context.WithTimeout(context.Background(), apperrors.CommandTimeout)
	defer cancel()

	if _, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(ctx); err != nil {
		h.logger.Error("failed to send throw error command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}
