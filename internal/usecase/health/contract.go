package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexProbe reports whether retrieval is running at full quality.
type IndexProbe interface {
	Healthy() (ok bool, detail string)
}

// LearningProbe reports whether the last learning cycle succeeded.
type LearningProbe interface {
	Healthy() (ok bool, detail string)
}
