package learning

import (
	"sync"
	"time"
)

// CycleResult summarizes one insight cycle.
type CycleResult struct {
	Version   int64 `json:"version"`
	Published bool  `json:"published"`
	Processed int   `json:"processed"`
	Skipped   int   `json:"skipped"`
	Updated   int   `json:"updated_clusters"`
	Pending   int   `json:"pending_clusters"`
}

// EmbeddingResult summarizes one embedding cycle.
type EmbeddingResult struct {
	Pairs   int `json:"pairs"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Status reports learning progress.
type Status struct {
	Running           bool            `json:"running"`
	LastRun           time.Time       `json:"last_run"`
	LastDurationMs    int64           `json:"last_duration_ms"`
	LastError         string          `json:"last_error,omitempty"`
	LastResult        CycleResult     `json:"last_result"`
	EmbeddingRunning  bool            `json:"embedding_running"`
	EmbeddingLastRun  time.Time       `json:"embedding_last_run"`
	EmbeddingLastErr  string          `json:"embedding_last_error,omitempty"`
	EmbeddingLast     EmbeddingResult `json:"embedding_last_result"`
	SnapshotVersion   int64           `json:"snapshot_version"`
	SnapshotClusters  int             `json:"snapshot_clusters"`
	SnapshotCreatedAt time.Time       `json:"snapshot_created_at"`
}

type statusBox struct {
	mu sync.Mutex
	st Status
}

func (b *statusBox) update(fn func(*Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.st)
}

func (b *statusBox) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}
