package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Query embedding metrics. Labels carry provider and model only, never text.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Upstream query embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resmatch",
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Upstream query embedding latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.8, 1, 2.5, 5},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Subsystem: "embedding",
			Name:      "tokens_total",
			Help:      "Tokens billed by the upstream embedder",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Upstream query embedding failures",
		},
		[]string{"provider", "model", "error_type"},
	)

	EmbeddingInputTruncatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Subsystem: "embedding",
			Name:      "input_truncated_total",
			Help:      "Query texts cut to the input budget before embedding",
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resmatch",
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Query embedding cache lookups",
		},
		[]string{"result"}, // hit / miss
	)
)

var embeddingOnce sync.Once

// RegisterEmbeddingMetrics registers query embedding metrics on the default
// registry. Later calls are no-ops.
func RegisterEmbeddingMetrics() {
	embeddingOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingInputTruncatedTotal,
			EmbeddingCacheTotal,
		)
	})
}
