package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Matching engine Prometheus metrics.
var (
	PipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "pipeline_requests_total",
			Help:      "Recommendation requests by terminal state",
		},
		[]string{"state"}, // delivered / guidance / failed
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resmatch",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each recommendation pipeline stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		},
		[]string{"stage"},
	)

	PipelineDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "pipeline_degraded_total",
			Help:      "Responses served on a degraded path",
		},
		[]string{"reason"},
	)

	IndexSearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "index_search_total",
			Help:      "Index searches by path",
		},
		[]string{"path"}, // ann / exact / fallback
	)

	IndexRecall = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resmatch",
			Name:      "index_recall_ratio",
			Help:      "Rolling recall of approximate search against exact search",
		},
	)

	IndexResources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resmatch",
			Name:      "index_resources",
			Help:      "Active resources in the published index snapshot",
		},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "feedback_total",
			Help:      "Accepted feedback records",
		},
		[]string{"outcome"}, // helpful / unhelpful
	)

	ResourceFlagsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "resource_flags_total",
			Help:      "Resources flagged for review",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resmatch",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	LearningCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "learning_cycles_total",
			Help:      "Learning cycles by kind and result",
		},
		[]string{"kind", "result"},
	)

	LearningSnapshotVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resmatch",
			Name:      "learning_snapshot_version",
			Help:      "Version of the active insight snapshot",
		},
	)

	LearningEmbeddingUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Name:      "learning_embedding_updates_total",
			Help:      "Resource embeddings updated from feedback",
		},
	)
)

var engineOnce sync.Once

// RegisterEngineMetrics registers matching engine metrics on the default
// registry. Later calls are no-ops.
func RegisterEngineMetrics() {
	engineOnce.Do(func() {
		prometheus.MustRegister(
			PipelineRequestsTotal,
			PipelineStageDuration,
			PipelineDegradedTotal,
			IndexSearchTotal,
			IndexRecall,
			IndexResources,
			FeedbackTotal,
			ResourceFlagsTotal,
			CircuitBreakerState,
			CircuitBreakerTransitions,
			LearningCyclesTotal,
			LearningSnapshotVersion,
			LearningEmbeddingUpdates,
		)
	})
}
