// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// PipelineStageDuration times each recommendation stage
	// (profile, embed, retrieve, hydrate).
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_stage_duration_seconds",
			Help:    "Duration of a recommendation pipeline stage in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"entity", "stage"},
	)

	RetrievedCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_retrieved_candidates",
			Help:    "Number of ranked candidates returned by the index per request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"entity", "mode"},
	)

	HydrationDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_hydration_dropped_total",
			Help: "Ranked ids that did not resolve in the relational store",
		},
		[]string{"entity"},
	)

	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_embedding_cache_lookups_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	ProfileCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_profile_cache_lookups_total",
			Help: "Requester profile cache lookups by result",
		},
		[]string{"result"},
	)

	IndexedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_indexed_documents_total",
			Help: "Documents written to the search index",
		},
		[]string{"index", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_upstream_request_duration_seconds",
			Help:    "Outbound HTTP round trips by upstream and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream", "status"},
	)
)
