// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler handles job errors with standardized error handling
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// CommandTimeout bounds fail/throw commands. They run on a context detached
// from the job's deadline so a timed-out job can still be reported.
const CommandTimeout = 10 * time.Second

// HandleJobError fails the job with retries for retryable codes and throws a
// BPMN error for everything else.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := AsStandardError(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CommandTimeout)
	defer cancel()

	retries := GetRetryCount(stdErr.Code)
	if retries > 0 && job.Retries > 0 {
		h.failJobWithRetries(sendCtx, client, job, bpmnErr, retries)
	} else {
		h.throwBPMNError(sendCtx, client, job, bpmnErr)
	}
}

// remainingRetries spends one retry from the job's budget, capped by the
// code's budget. It only ever decreases, so a persistent failure reaches 0
// and the engine raises an incident.
func remainingRetries(jobRetries int32, maxRetries int) int32 {
	budget := jobRetries
	if int32(maxRetries) < budget {
		budget = int32(maxRetries)
	}
	if budget <= 1 {
		return 0
	}
	return budget - 1
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, maxRetries int) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(remainingRetries(job.Retries, maxRetries)).
		ErrorMessage(bpmnErr.Message)

	var sendErr error
	if withVars, err := withErrorVariables(cmd, bpmnErr); err == nil {
		_, sendErr = withVars.Send(ctx)
	} else {
		_, sendErr = cmd.Send(ctx)
	}
	h.logSendError("fail job", job, sendErr)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	var sendErr error
	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, sendErr = withVars.Send(ctx)
			h.logSendError("throw error", job, sendErr)
			return
		}
	}

	_, sendErr = cmd.Send(ctx)
	h.logSendError("throw error", job, sendErr)
}

func withErrorVariables(cmd commands.FailJobCommandStep3, bpmnErr *BPMNError) (commands.DispatchFailJobCommand, error) {
	varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		return nil, err
	}
	return cmd.VariablesFromString(string(varsJSON))
}

func (h *ErrorHandler) logSendError(command string, job entities.Job, err error) {
	if err == nil {
		return
	}
	h.logger.Error("Failed to send job command", map[string]interface{}{
		"command": command,
		"jobKey":  job.Key,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          GetRetryCount(stdErr.Code),
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
