// Package learning turns accumulated feedback into published scoring
// snapshots and periodic embedding adjustments. Cycles run off the request
// path and publish with a single atomic swap.
package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	"github.com/kailas-cloud/resmatch/internal/metrics"
)

// Config holds learning parameters.
type Config struct {
	MinSamples       int
	Smoothing        float64
	BatchSize        int
	LearningRate     float64
	MaxDisplacement  float64
	WritesPerSecond  float64
	EmbeddingWorkers int
	Lookback         time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		c.Smoothing = 0.3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.01
	}
	if c.MaxDisplacement <= 0 {
		c.MaxDisplacement = 0.05
	}
	if c.WritesPerSecond <= 0 {
		c.WritesPerSecond = 50
	}
	if c.EmbeddingWorkers <= 0 {
		c.EmbeddingWorkers = 4
	}
	if c.Lookback <= 0 {
		c.Lookback = 7 * 24 * time.Hour
	}
}

// Service runs learning cycles and serves the current snapshot.
type Service struct {
	ledger    Ledger
	snapshots SnapshotStore
	traces    TraceReader
	index     ResourceIndex
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	current atomic.Pointer[insight.Snapshot]
	cycleMu sync.Mutex
	embMu   sync.Mutex
	// embCursor is the last ledger entry an embedding cycle applied. Guarded by embMu.
	embCursor string
	status    statusBox
}

// New creates a learning service serving the empty snapshot until Load runs.
func New(
	ledger Ledger, snapshots SnapshotStore, traces TraceReader, index ResourceIndex,
	cfg Config, logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	s := &Service{
		ledger:    ledger,
		snapshots: snapshots,
		traces:    traces,
		index:     index,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	s.current.Store(insight.Empty())
	return s
}

// Load installs the latest persisted snapshot. Nothing persisted is not an error.
func (s *Service) Load(ctx context.Context) error {
	snap, err := s.snapshots.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("No insight snapshot published yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}
	s.install(snap)
	s.logger.Info("Insight snapshot loaded",
		zap.Int64("version", snap.Version()), zap.Int("clusters", snap.Len()))
	return nil
}

// Current returns the live snapshot. The result is immutable.
func (s *Service) Current() *insight.Snapshot {
	return s.current.Load()
}

// Snapshot returns a specific published version.
func (s *Service) Snapshot(ctx context.Context, version int64) (*insight.Snapshot, error) {
	if cur := s.current.Load(); cur.Version() == version {
		return cur, nil
	}
	snap, err := s.snapshots.Get(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", version, err)
	}
	return snap, nil
}

// Status reports the latest cycle outcomes.
func (s *Service) Status() Status {
	return s.status.get()
}

func (s *Service) install(snap *insight.Snapshot) {
	s.current.Store(snap)
	metrics.LearningSnapshotVersion.Set(float64(snap.Version()))
	s.status.update(func(st *Status) {
		st.SnapshotVersion = snap.Version()
		st.SnapshotClusters = snap.Len()
		st.SnapshotCreatedAt = snap.CreatedAt()
	})
}

// RunCycle folds feedback recorded since the live snapshot's cursor into a
// new snapshot and publishes it. Only one cycle runs at a time.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	if !s.cycleMu.TryLock() {
		return CycleResult{}, domain.ErrLearningInProgress
	}
	defer s.cycleMu.Unlock()

	start := s.now()
	s.status.update(func(st *Status) { st.Running = true })

	res, err := s.runCycle(ctx)

	s.status.update(func(st *Status) {
		st.Running = false
		st.LastRun = start
		st.LastDurationMs = s.now().Sub(start).Milliseconds()
		st.LastResult = res
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	})
	if err != nil {
		metrics.LearningCyclesTotal.WithLabelValues("insights", "error").Inc()
		s.logger.Error("Learning cycle failed", zap.Error(err))
		return res, err
	}
	metrics.LearningCyclesTotal.WithLabelValues("insights", "ok").Inc()
	s.logger.Info("Learning cycle complete",
		zap.Int64("version", res.Version),
		zap.Bool("published", res.Published),
		zap.Int("processed", res.Processed),
		zap.Int("updated_clusters", res.Updated),
		zap.Int("pending_clusters", res.Pending))
	return res, nil
}

func (s *Service) runCycle(ctx context.Context) (CycleResult, error) {
	prev := s.current.Load()
	res := CycleResult{Version: prev.Version()}

	patterns := prev.Patterns()
	if patterns == nil {
		patterns = map[insight.ClusterKey]insight.Pattern{}
	}
	pending := prev.Pending()
	if pending == nil {
		pending = map[insight.ClusterKey]insight.Tally{}
	}

	cursor := prev.Cursor()
	traces := newTraceCache(s.traces)
	for {
		entries, err := s.ledger.Since(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("read feedback: %w", err)
		}
		for _, e := range entries {
			cursor = e.Cursor
			f := e.Feedback
			if f.ResourceID == "" {
				res.Skipped++
				continue
			}
			key := s.clusterKey(ctx, traces, f.QueryID, f.ResourceID)
			helpful, rating, hasRating := f.Success()
			pending[key] = pending[key].Add(helpful, rating, hasRating)
			res.Processed++
		}
		if len(entries) < s.cfg.BatchSize {
			break
		}
	}

	if cursor == prev.Cursor() {
		res.Pending = len(pending)
		return res, nil
	}

	now := s.now().UTC()
	for key, t := range pending {
		if t.Samples < s.cfg.MinSamples {
			continue
		}
		p, ok := patterns[key]
		prior := insight.DefaultHistorical
		if ok {
			prior = p.HistoricalSuccess
		}
		rate := t.Rate()
		patterns[key] = insight.Pattern{
			HistoricalSuccess: clamp01((1-s.cfg.Smoothing)*prior + s.cfg.Smoothing*rate),
			LastRate:          rate,
			SampleSize:        p.SampleSize + t.Samples,
			UpdatedAt:         now,
		}
		delete(pending, key)
		res.Updated++
	}
	res.Pending = len(pending)

	version, err := s.snapshots.NextVersion(ctx)
	if err != nil {
		return res, fmt.Errorf("allocate snapshot version: %w", err)
	}
	next := insight.New(version, now, cursor, s.cfg.Smoothing, patterns, pending)
	if err := s.snapshots.Save(ctx, next); err != nil {
		return res, fmt.Errorf("persist snapshot %d: %w", version, err)
	}
	s.install(next)

	res.Version = version
	res.Published = true
	return res, nil
}

// clusterKey resolves the cluster of one feedback record. A missing trace
// yields the unknown need; the category falls back to the live index.
func (s *Service) clusterKey(ctx context.Context, traces *traceCache, queryID, resourceID string) insight.ClusterKey {
	tr, ok := traces.get(ctx, queryID, s.logger)

	var need string
	var urgency query.Urgency
	category := ""
	if ok {
		need = tr.PrimaryNeed
		urgency = tr.Urgency
		category, _ = tr.CategoryOf(resourceID)
	}
	if category == "" {
		if r, found := s.index.Lookup(resourceID); found {
			category = r.Category()
		}
	}
	if category == "" {
		category = insight.UnknownNeed
	}
	return insight.ClusterKey{
		ResourceID: resourceID,
		Signature:  insight.Signature(need, urgency, category),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// traceCache memoizes trace lookups for the duration of a cycle.
type traceCache struct {
	reader TraceReader
	seen   map[string]*query.Trace
}

func newTraceCache(r TraceReader) *traceCache {
	return &traceCache{reader: r, seen: map[string]*query.Trace{}}
}

func (c *traceCache) get(ctx context.Context, queryID string, logger *zap.Logger) (query.Trace, bool) {
	if t, ok := c.seen[queryID]; ok {
		if t == nil {
			return query.Trace{}, false
		}
		return *t, true
	}
	t, err := c.reader.Get(ctx, queryID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Trace lookup failed", zap.String("query_id", queryID), zap.Error(err))
		}
		c.seen[queryID] = nil
		return query.Trace{}, false
	}
	c.seen[queryID] = &t
	return t, true
}

// Healthy reports whether the last cycles succeeded.
func (s *Service) Healthy() (bool, string) {
	st := s.status.get()
	switch {
	case st.LastError != "":
		return false, "last insight cycle failed: " + st.LastError
	case st.EmbeddingLastErr != "":
		return false, "last embedding cycle failed: " + st.EmbeddingLastErr
	}
	return true, fmt.Sprintf("snapshot v%d", st.SnapshotVersion)
}
