// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	baseRetryBackoff = 2 * time.Second
	maxRetryBackoff  = 30 * time.Second
)

// ErrorHandler turns handler errors into Zeebe fail or throw commands.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError reports err for job. Connection-level errors fail the job
// with a retry budget and a growing backoff. Everything else is thrown as a
// BPMN error so the process model can branch on the code.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	vars := errorVariables(bpmnErr)
	if bpmnErr.Retries > 0 && job.Retries > 0 {
		h.fail(ctx, client, job, bpmnErr, vars)
		return
	}
	h.throw(ctx, client, job, bpmnErr, vars)
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// RetryBackoff doubles per consumed retry, capped at maxRetryBackoff.
func RetryBackoff(budget, remaining int) time.Duration {
	used := budget - remaining
	if used < 0 {
		used = 0
	}
	backoff := baseRetryBackoff << uint(used)
	if backoff <= 0 || backoff > maxRetryBackoff {
		return maxRetryBackoff
	}
	return backoff
}

func (h *ErrorHandler) fail(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, vars string) {
	remaining := bpmnErr.Retries
	if int(job.Retries) < remaining {
		remaining = int(job.Retries)
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(remaining - 1)).
		ErrorMessage(bpmnErr.Message).
		RetryBackoff(RetryBackoff(bpmnErr.Retries, remaining))

	if vars != "" {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			_, sendErr := withVars.Send(ctx)
			h.sent(job, "fail", sendErr)
			return
		}
	}
	_, sendErr := cmd.Send(ctx)
	h.sent(job, "fail", sendErr)
}

func (h *ErrorHandler) throw(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, vars string) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if vars != "" {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			_, sendErr := withVars.Send(ctx)
			h.sent(job, "throw", sendErr)
			return
		}
	}
	_, sendErr := cmd.Send(ctx)
	h.sent(job, "throw", sendErr)
}

func errorVariables(bpmnErr *BPMNError) string {
	raw, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		return ""
	}
	return string(raw)
}

// sent logs a command the broker refused; the job then times out and is
// picked up again.
func (h *ErrorHandler) sent(job entities.Job, command string, err error) {
	if err == nil {
		return
	}
	h.logger.Error("job error command not delivered", map[string]interface{}{
		"jobKey":  job.Key,
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
