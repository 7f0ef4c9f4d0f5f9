// internal/workers/recommendation/recommend-winkers/handler.go
package recommendwinkers

import (
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
	"nisu-recommender/internal/recommendation/pipeline"
)

const (
	TaskType = "recommend-winkers"
)

var (
	ErrNilInput = errors.New("input cannot be nil")
)

// Recommender produces people recommendations seeded by the requester's profile.
type Recommender interface {
	RecommendWinkers(ctx context.Context, in pipeline.RecommendRequest) (*pipeline.ResultPage, error)
}

type Handler struct {
	config      *Config
	recommender Recommender
	validator   *validation.Validator
	errors      *apperrors.ErrorHandler
	logger      logger.Logger
}

func NewHandler(config *Config, recommender Recommender, validator *validation.Validator, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:      config,
		recommender: recommender,
		validator:   validator,
		errors:      apperrors.NewErrorHandler(scoped),
		logger:      scoped,
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
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
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
	if input.RequesterID <= 0 {
		return nil, apperrors.NewInvalidInputError("requesterId must be a positive integer")
	}

	page, err := h.recommender.RecommendWinkers(ctx, toRequest(input))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !apperrors.HasCode(err, apperrors.ErrCodeSearchTimeout) {
			return nil, apperrors.NewSearchTimeoutError(TaskType, err)
		}
		return nil, err
	}

	h.logger.Info("recommendations ready", map[string]interface{}{
		"requestId":   page.RequestID,
		"requesterId": input.RequesterID,
		"items":       len(page.Items),
	})

	return &Output{
		Items:      page.Items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalCount: page.TotalCount,
		HasMore:    page.HasMore,
		RequestID:  page.RequestID,
	}, nil
}

func toRequest(input *Input) pipeline.RecommendRequest {
	return pipeline.RecommendRequest{
		RequesterID:     input.RequesterID,
		Lat:             input.Lat,
		Lon:             input.Lon,
		RequireLocation: input.RequireLocation,
		Page:            input.Page,
		PerPage:         input.PerPage,
		FollowFlags:     input.IncludeFollowFlags,
		Overrides: pipeline.Overrides{
			Text:         input.TextWeight,
			Vector:       input.VecWeight,
			Geo:          input.GeoWeight,
			Popularity:   input.PopularityWeight,
			Recency:      input.RecencyWeight,
			Age:          input.AgeWeight,
			Diversity:    input.DiversityWeight,
			SigmaKm:      input.SigmaKm,
			SoftRadiusKm: input.SoftRadiusKm,
			HardRadiusKm: input.HardRadiusKm,
		},
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
