// Package insight holds the versioned scoring snapshot the learning service
// publishes and the ranking engine reads.
package insight

import (
	"maps"
	"strings"
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain/query"
)

// DefaultHistorical is the historical success assumed without data.
const DefaultHistorical = 0.5

// UnknownNeed stands in for a primary need that could not be recovered.
const UnknownNeed = "unknown"

// Signature builds the query-characteristic cluster label
// primary_need|urgency|category.
func Signature(primaryNeed string, urgency query.Urgency, category string) string {
	need := strings.ToLower(strings.TrimSpace(primaryNeed))
	if need == "" {
		need = UnknownNeed
	}
	if urgency == "" {
		urgency = query.UrgencyPlanning
	}
	return need + "|" + string(urgency) + "|" + strings.ToLower(strings.TrimSpace(category))
}

// ClusterKey identifies one (resource, query cluster) pair.
type ClusterKey struct {
	ResourceID string
	Signature  string
}

// String renders the key as resource@signature.
func (k ClusterKey) String() string { return k.ResourceID + "@" + k.Signature }

// ParseClusterKey inverts String.
func ParseClusterKey(s string) (ClusterKey, bool) {
	id, sig, ok := strings.Cut(s, "@")
	if !ok || id == "" || sig == "" {
		return ClusterKey{}, false
	}
	return ClusterKey{ResourceID: id, Signature: sig}, true
}

// Pattern is the learned outcome statistics for one cluster.
type Pattern struct {
	HistoricalSuccess float64   `json:"historical_success"`
	LastRate          float64   `json:"last_rate"`
	SampleSize        int       `json:"sample_size"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Tally accumulates outcomes for a cluster that has not reached the
// minimum sample size yet.
type Tally struct {
	Samples  int     `json:"samples"`
	Weighted float64 `json:"weighted"`
	Weight   float64 `json:"weight"`
}

// Add folds one outcome into the tally. The helpful signal has weight 1; a
// rating, when present, has weight 2.
func (t Tally) Add(helpful, rating float64, hasRating bool) Tally {
	t.Samples++
	t.Weighted += helpful
	t.Weight++
	if hasRating {
		t.Weighted += 2 * rating
		t.Weight += 2
	}
	return t
}

// Rate returns the weighted success rate.
func (t Tally) Rate() float64 {
	if t.Weight == 0 {
		return 0
	}
	return t.Weighted / t.Weight
}

// Snapshot is an immutable published scoring state.
type Snapshot struct {
	version   int64
	createdAt time.Time
	cursor    string
	smoothing float64
	patterns  map[ClusterKey]Pattern
	pending   map[ClusterKey]Tally
}

// New creates a snapshot, copying the maps it is given.
func New(
	version int64, createdAt time.Time, cursor string, smoothing float64,
	patterns map[ClusterKey]Pattern, pending map[ClusterKey]Tally,
) *Snapshot {
	return &Snapshot{
		version:   version,
		createdAt: createdAt,
		cursor:    cursor,
		smoothing: smoothing,
		patterns:  maps.Clone(patterns),
		pending:   maps.Clone(pending),
	}
}

// Empty is the version-0 snapshot used before anything is published.
func Empty() *Snapshot {
	return New(0, time.Time{}, "", 0, nil, nil)
}

// Version returns the monotonic snapshot version.
func (s *Snapshot) Version() int64 { return s.version }

// CreatedAt returns the publication time.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Cursor returns the feedback ledger position this snapshot covers.
func (s *Snapshot) Cursor() string { return s.cursor }

// Smoothing returns the EMA factor used to build this snapshot.
func (s *Snapshot) Smoothing() float64 { return s.smoothing }

// Historical returns the historical success for a cluster, or DefaultHistorical.
func (s *Snapshot) Historical(resourceID, signature string) float64 {
	if s == nil {
		return DefaultHistorical
	}
	if p, ok := s.patterns[ClusterKey{ResourceID: resourceID, Signature: signature}]; ok {
		return p.HistoricalSuccess
	}
	return DefaultHistorical
}

// Pattern returns the pattern for key.
func (s *Snapshot) Pattern(key ClusterKey) (Pattern, bool) {
	p, ok := s.patterns[key]
	return p, ok
}

// Patterns returns a copy of all patterns.
func (s *Snapshot) Patterns() map[ClusterKey]Pattern { return maps.Clone(s.patterns) }

// Pending returns a copy of the partial tallies.
func (s *Snapshot) Pending() map[ClusterKey]Tally { return maps.Clone(s.pending) }

// Len returns the number of learned clusters.
func (s *Snapshot) Len() int { return len(s.patterns) }
