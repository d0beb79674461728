package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/metrics"
)

// Search modes.
const (
	ModeAuto  = "auto"
	ModeANN   = "ann"
	ModeExact = "exact"
)

// Config tunes retrieval.
type Config struct {
	Dimensions        int
	Mode              string
	MaxTopK           int
	Overfetch         int
	ANNMinResources   int
	RecallSampleEvery int
	RecallThreshold   float64
	RecallTarget      float64
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// Stats describes the published index.
type Stats struct {
	Version      int64   `json:"version"`
	Resources    int     `json:"resources"`
	Flagged      int     `json:"flagged"`
	ANNReady     bool    `json:"ann_ready"`
	Recall       float64 `json:"recall"`
	RecallOK     bool    `json:"recall_ok"`
	BreakerState string  `json:"breaker_state"`
}

// Service is the resource index. Reads run against an immutable snapshot
// loaded through an atomic pointer; writers copy on write and publish once.
type Service struct {
	repo    Repository
	ann     ANNSearcher
	cfg     Config
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker[[]domres.Neighbor]
	recall  *recallMonitor
	now     func() time.Time

	state    atomic.Pointer[state]
	annReady atomic.Bool
	queries  atomic.Uint64
	mu       sync.Mutex // serializes writers
}

// New creates a resource index. ann may be nil, in which case every query
// runs exactly.
func New(repo Repository, ann ANNSearcher, cfg Config, logger *zap.Logger) *Service {
	if cfg.Overfetch < 1 {
		cfg.Overfetch = 1
	}
	if cfg.RecallSampleEvery < 1 {
		cfg.RecallSampleEvery = 100
	}
	s := &Service{
		repo:   repo,
		ann:    ann,
		cfg:    cfg,
		logger: logger,
		recall: newRecallMonitor(cfg.RecallThreshold, cfg.RecallTarget),
		now:    time.Now,
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]domres.Neighbor](gobreaker.Settings{
		Name:        "ann-search",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max(cfg.BreakerFailures, 1)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.ObserveBreaker(name, from, to)
		},
	})
	s.state.Store(emptyState())
	return s
}

// Load reads every stored resource and publishes a fresh snapshot.
// A missing vector index leaves the service on exact search.
func (s *Service) Load(ctx context.Context) error {
	if s.ann != nil && s.cfg.Mode != ModeExact {
		if err := s.repo.EnsureIndex(ctx); err != nil {
			s.logger.Warn("Vector index unavailable, using exact search", zap.Error(err))
			s.annReady.Store(false)
		} else {
			s.annReady.Store(true)
		}
	}

	resources, err := s.repo.LoadAll(ctx, func(id string, err error) {
		s.logger.Warn("Skipping unreadable resource", zap.String("resource_id", id), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	byID := make(map[string]*domres.Resource, len(resources))
	for i := range resources {
		r := &resources[i]
		if r.Retired() {
			continue
		}
		if err := domain.ValidateVector(r.Embedding(), s.cfg.Dimensions); err != nil {
			s.logger.Warn("Skipping resource with malformed embedding",
				zap.String("resource_id", r.ID()), zap.Error(err))
			continue
		}
		byID[r.ID()] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := buildState(s.state.Load().version+1, byID)
	s.publish(st)
	s.logger.Info("Resource index loaded",
		zap.Int("resources", len(st.all)),
		zap.Int64("version", st.version),
		zap.Bool("ann_ready", s.annReady.Load()),
	)
	return nil
}

func (s *Service) publish(st *state) {
	s.state.Store(st)
	metrics.IndexResources.Set(float64(len(st.all)))
}

// Retrieve returns up to topK active resources most similar to embedding,
// ordered by similarity desc then id asc. A non-empty categoryHint limits
// the candidate set before the similarity search.
func (s *Service) Retrieve(
	ctx context.Context, embedding []float32, categoryHint string, topK int,
) ([]domres.Candidate, error) {
	if topK < 1 || topK > s.cfg.MaxTopK {
		return nil, fmt.Errorf("%w: %d not in [1,%d]", domain.ErrTopKOutOfRange, topK, s.cfg.MaxTopK)
	}
	if err := domain.ValidateVector(embedding, s.cfg.Dimensions); err != nil {
		return nil, err
	}

	st := s.state.Load()
	q := domain.Normalize(embedding)
	hint := normalizeHint(categoryHint)
	sample := s.queries.Add(1)%uint64(s.cfg.RecallSampleEvery) == 0

	if !s.annEligible(st) {
		metrics.IndexSearchTotal.WithLabelValues("exact").Inc()
		return exactSearch(st, q, hint, topK), nil
	}

	if s.recall.degraded() {
		// Keep measuring so a recovered index can return to service.
		exact := exactSearch(st, q, hint, topK)
		if sample {
			if ann, err := s.annSearch(ctx, st, q, hint, topK); err == nil {
				s.observeRecall(ann, exact)
			}
		}
		metrics.IndexSearchTotal.WithLabelValues("exact").Inc()
		return exact, nil
	}

	ann, err := s.annSearch(ctx, st, q, hint, topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("retrieve: %w", ctxErr)
		}
		s.logger.Warn("Approximate search failed, using exact search", zap.Error(err))
		metrics.IndexSearchTotal.WithLabelValues("fallback").Inc()
		return exactSearch(st, q, hint, topK), nil
	}
	metrics.IndexSearchTotal.WithLabelValues("ann").Inc()

	if sample {
		s.observeRecall(ann, exactSearch(st, q, hint, topK))
	}
	return ann, nil
}

func (s *Service) annEligible(st *state) bool {
	switch {
	case s.ann == nil, s.cfg.Mode == ModeExact, !s.annReady.Load():
		return false
	case s.cfg.Mode == ModeAuto && len(st.all) < s.cfg.ANNMinResources:
		return false
	default:
		return true
	}
}

// annSearch asks the vector index for candidate ids and rescores them
// against the snapshot so results stay deterministic for a version.
func (s *Service) annSearch(
	ctx context.Context, st *state, q []float32, hint string, topK int,
) ([]domres.Candidate, error) {
	hits, err := s.breaker.Execute(func() ([]domres.Neighbor, error) {
		return s.ann.SearchKNN(ctx, q, hint, topK*s.cfg.Overfetch)
	})
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}

	out := make([]domres.Candidate, 0, len(hits))
	for _, h := range hits {
		r, ok := st.byID[h.ID]
		if !ok {
			s.logger.Debug("Dropping stale index hit", zap.String("resource_id", h.ID))
			continue
		}
		if hint != "" && r.Category() != hint {
			continue
		}
		out = append(out, domres.Candidate{Resource: r, Similarity: domain.Cosine(q, r.Embedding())})
	}
	sortCandidates(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *Service) observeRecall(ann, exact []domres.Candidate) {
	if v, ok := s.recall.observe(ann, exact); ok {
		metrics.IndexRecall.Set(v)
		if v < s.cfg.RecallTarget {
			s.logger.Warn("Approximate search below recall target",
				zap.Float64("recall", v), zap.Float64("target", s.cfg.RecallTarget))
		}
	}
}

func exactSearch(st *state, q []float32, hint string, topK int) []domres.Candidate {
	part := st.partition(hint)
	out := make([]domres.Candidate, 0, len(part))
	for _, r := range part {
		out = append(out, domres.Candidate{Resource: r, Similarity: domain.Cosine(q, r.Embedding())})
	}
	sortCandidates(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func sortCandidates(cs []domres.Candidate) {
	slices.SortFunc(cs, func(a, b domres.Candidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Resource.ID(), b.Resource.ID())
	})
}

// Get returns a resource from the snapshot, falling back to storage for
// resources outside it (retired).
func (s *Service) Get(ctx context.Context, id string) (domres.Resource, error) {
	if r, ok := s.state.Load().byID[id]; ok {
		return *r, nil
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return domres.Resource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	return r, nil
}

// Lookup returns a resource from the current snapshot only.
func (s *Service) Lookup(id string) (*domres.Resource, bool) {
	r, ok := s.state.Load().byID[id]
	return r, ok
}

// Upsert stores a resource handed off by ingestion and publishes it.
// Resources with a malformed embedding are rejected.
func (s *Service) Upsert(ctx context.Context, r domres.Resource) (domres.Resource, error) {
	if err := domain.ValidateVector(r.Embedding(), s.cfg.Dimensions); err != nil {
		return domres.Resource{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	version := 1
	if prev, ok := cur.byID[r.ID()]; ok {
		version = prev.Version() + 1
	} else if stored, err := s.repo.Get(ctx, r.ID()); err == nil {
		version = stored.Version() + 1
	} else if !errors.Is(err, domain.ErrResourceNotFound) {
		return domres.Resource{}, fmt.Errorf("upsert resource %s: %w", r.ID(), err)
	}
	next := r.WithVersion(version, s.now())

	if err := s.repo.Put(ctx, &next); err != nil {
		return domres.Resource{}, fmt.Errorf("upsert resource %s: %w", r.ID(), err)
	}
	s.publish(cur.with(&next))
	return next, nil
}

// SwapEmbedding atomically replaces one resource's embedding. Readers see
// either the old or the new vector.
func (s *Service) SwapEmbedding(ctx context.Context, id string, vec []float32) error {
	if err := domain.ValidateVector(vec, s.cfg.Dimensions); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	prev, ok := cur.byID[id]
	if !ok {
		return fmt.Errorf("swap embedding %s: %w", id, domain.ErrResourceNotFound)
	}
	next := prev.WithEmbedding(domain.Normalize(vec), s.now())

	if err := s.repo.UpdateEmbedding(ctx, id, next.Embedding(), next.Version(), next.UpdatedAt()); err != nil {
		return fmt.Errorf("swap embedding %s: %w", id, err)
	}
	s.publish(cur.with(&next))
	return nil
}

// Flag marks a resource for administrative review. Flagged resources stay
// in service.
func (s *Service) Flag(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	prev, ok := cur.byID[id]
	if !ok {
		return fmt.Errorf("flag %s: %w", id, domain.ErrResourceNotFound)
	}
	at := s.now()
	if err := s.repo.Flag(ctx, id, reason, at); err != nil {
		return fmt.Errorf("flag %s: %w", id, err)
	}
	next := prev.WithFlag(reason, at)
	s.publish(cur.with(&next))

	metrics.ResourceFlagsTotal.Inc()
	s.logger.Info("Resource flagged for review", zap.String("resource_id", id), zap.String("reason", reason))
	return nil
}

// Flagged lists resources awaiting review.
func (s *Service) Flagged() []string {
	return s.state.Load().flagged()
}

// Version returns the published snapshot version.
func (s *Service) Version() int64 {
	return s.state.Load().version
}

// Stats reports the current index state.
func (s *Service) Stats() Stats {
	st := s.state.Load()
	return Stats{
		Version:      st.version,
		Resources:    len(st.all),
		Flagged:      len(st.flagged()),
		ANNReady:     s.annReady.Load() && s.annEligible(st),
		Recall:       s.recall.value(),
		RecallOK:     !s.recall.degraded(),
		BreakerState: s.breaker.State().String(),
	}
}

// Healthy reports whether retrieval runs without fallbacks.
func (s *Service) Healthy() (bool, string) {
	st := s.Stats()
	switch {
	case !st.RecallOK:
		return false, fmt.Sprintf("approximate recall %.2f below threshold, serving exact search", st.Recall)
	case st.BreakerState == gobreaker.StateOpen.String():
		return false, "approximate search circuit open, serving exact search"
	}
	return true, fmt.Sprintf("%d resources, snapshot v%d", st.Resources, st.Version)
}
