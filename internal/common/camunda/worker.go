// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"nisu-recommender/internal/common/observability"
)

// HandlerFunc is the signature every recommendation worker exposes.
type HandlerFunc func(client worker.JobClient, job entities.Job)

// WorkerOptions are the per-task-type polling settings.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
	// Observability, when set, records one otel job sample per handled job.
	Observability *observability.Observability
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   *zap.Logger
	taskType string
}

// NewWorker opens a job worker for taskType. Each job is handled inside a
// recover so a panicking handler cannot take the process down.
func NewWorker(client zbc.Client, taskType string, opts WorkerOptions, handler HandlerFunc, logger *zap.Logger) *CamundaWorker {
	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			start := time.Now()
			status := "handled"
			defer func() {
				if r := recover(); r != nil {
					status = "panicked"
					logger.Error("handler panicked",
						zap.String("taskType", taskType),
						zap.Int64("jobKey", job.Key),
						zap.Any("panic", r))
				}
				if opts.Observability != nil {
					ctx := context.Background()
					opts.Observability.RecordJobProcessed(ctx, taskType, status)
					opts.Observability.RecordJobDuration(ctx, taskType, time.Since(start), status)
				}
			}()
			handler(jc, job)
		}).
		MaxJobsActive(opts.MaxJobsActive)

	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}

	logger.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", opts.MaxJobsActive),
		zap.Duration("timeout", opts.Timeout))

	return &CamundaWorker{
		worker:   builder.Open(),
		logger:   logger,
		taskType: taskType,
	}
}

// TaskType returns the job type this worker polls.
func (w *CamundaWorker) TaskType() string {
	return w.taskType
}

// Close stops polling. The shared client is closed by its owner.
func (w *CamundaWorker) Close() {
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))
	w.worker.Close()
}
