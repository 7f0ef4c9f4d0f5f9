// internal/workers/indexing/index-events/handler.go
package indexevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "nisu-recommender/internal/common/errors"
	"nisu-recommender/internal/common/logger"
	"nisu-recommender/internal/common/metrics"
	"nisu-recommender/internal/common/validation"
	"nisu-recommender/internal/recommendation/indexing"
)

const (
	TaskType = "index-events"
)

var (
	ErrNilInput = errors.New("input cannot be nil")
)

type Indexer interface {
	IndexEvents(ctx context.Context, index string, records []map[string]interface{}, refresh bool) (*indexing.Report, error)
}

type Handler struct {
	config    *Config
	indexer   Indexer
	validator *validation.Validator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, indexer Indexer, validator *validation.Validator, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		indexer:   indexer,
		validator: validator,
		errors:    apperrors.NewErrorHandler(scoped),
		logger:    scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	var input Input
	dec := json.NewDecoder(bytes.NewReader([]byte(variables)))
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}

	if h.validator != nil {
		result, err := h.validator.ValidateJSON(TaskType, variables)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		if !result.Valid {
			return nil, apperrors.NewInvalidInputError(strings.Join(result.GetErrorMessages(), "; "))
		}
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidInputError(ErrNilInput.Error())
	}
	if len(input.Events) == 0 {
		return nil, apperrors.NewInvalidInputError("events must not be empty")
	}

	report, err := h.indexer.IndexEvents(ctx, h.config.Index, input.Events, input.Refresh)
	if err != nil {
		return nil, err
	}

	return &Output{
		Status: status(report),
		Count:  report.Indexed,
		Failed: report.Failed,
		Errors: report.Errors,
	}, nil
}

func status(r *indexing.Report) string {
	switch {
	case r.Failed == 0:
		return StatusIndexed
	case r.Indexed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errors.HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
