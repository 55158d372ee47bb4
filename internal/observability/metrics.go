package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	pipelineRunsTotal    *prometheus.CounterVec
	stageDurationSeconds *prometheus.HistogramVec
	extractionCacheTotal *prometheus.CounterVec
	imagesRejectedTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_api_requests_total",
			Help: "Total number of worksheet API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_api_latency_seconds",
			Help:    "Latency distribution for worksheet API requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_api_errors_total",
			Help: "Total number of error responses returned by worksheet endpoints.",
		}, []string{"method", "route", "status"})

		pipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_pipeline_runs_total",
			Help: "Grading runs by final state and grading path.",
		}, []string{"outcome", "graded_by"})

		stageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_pipeline_stage_seconds",
			Help:    "Time spent in each grading pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 120},
		}, []string{"stage"})

		extractionCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_extraction_cache_total",
			Help: "Extraction cache lookups by result.",
		}, []string{"result"})

		imagesRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_images_rejected_total",
			Help: "Uploaded worksheet images rejected during intake.",
		}, []string{"reason"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			pipelineRunsTotal,
			stageDurationSeconds,
			extractionCacheTotal,
			imagesRejectedTotal,
		)
	})
}

// APIRequests exposes the counter for worksheet API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for worksheet API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for worksheet API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// PipelineRuns counts finished grading runs.
func PipelineRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineRunsTotal
}

// StageDuration tracks how long each pipeline stage takes.
func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDurationSeconds
}

// ExtractionCache counts extraction cache hits and misses.
func ExtractionCache() *prometheus.CounterVec {
	RegisterMetrics()
	return extractionCacheTotal
}

// ImagesRejected counts images refused at intake.
func ImagesRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return imagesRejectedTotal
}
