package resmatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	dbValkey "github.com/kailas-cloud/resmatch/internal/db/valkey"
	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	feedbackrepo "github.com/kailas-cloud/resmatch/internal/repository/feedback"
	resourcerepo "github.com/kailas-cloud/resmatch/internal/repository/resource"
	searchrepo "github.com/kailas-cloud/resmatch/internal/repository/search"
	snapshotrepo "github.com/kailas-cloud/resmatch/internal/repository/snapshot"
	tracerepo "github.com/kailas-cloud/resmatch/internal/repository/trace"
	embeddinguc "github.com/kailas-cloud/resmatch/internal/usecase/embedding"
	"github.com/kailas-cloud/resmatch/internal/usecase/explain"
	feedbackuc "github.com/kailas-cloud/resmatch/internal/usecase/feedback"
	healthuc "github.com/kailas-cloud/resmatch/internal/usecase/health"
	indexuc "github.com/kailas-cloud/resmatch/internal/usecase/index"
	"github.com/kailas-cloud/resmatch/internal/usecase/learning"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
	"github.com/kailas-cloud/resmatch/internal/usecase/ranking"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 1024
	defaultKeyPrefix        = "resmatch:"
	defaultHNSWM            = 32
	defaultHNSWEFConstruct  = 400
	defaultTraceTTL         = 30 * 24 * time.Hour
)

// Internal interfaces for substitution in tests.
type recommender interface {
	Recommend(ctx context.Context, req pipeline.Request) (pipeline.RecommendationSet, error)
}

type feedbackUseCase interface {
	Submit(ctx context.Context, f domfb.Feedback) (domfb.Acknowledgment, error)
}

type resourceIndex interface {
	Get(ctx context.Context, id string) (domres.Resource, error)
	Upsert(ctx context.Context, r domres.Resource) (domres.Resource, error)
	Flag(ctx context.Context, id, reason string) error
}

type learner interface {
	Current() *insight.Snapshot
	RunCycle(ctx context.Context) (learning.CycleResult, error)
	RunEmbeddingCycle(ctx context.Context) (learning.EmbeddingResult, error)
}

// Client is the resmatch SDK entry point. It is safe for concurrent use.
type Client struct {
	store       *dbValkey.Store
	dims        int
	recommender recommender
	feedbackSvc feedbackUseCase
	index       resourceIndex
	learner     learner
	healthSvc   healthUseCase
	obs         *observer
}

// New creates a Client, connects to Valkey and loads the resource catalog
// and the latest learning snapshot. The provided context bounds the
// readiness check and the initial load.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		vectorDimensions: defaultDimensions,
		keyPrefix:        defaultKeyPrefix,
		hnswM:            defaultHNSWM,
		hnswEFConstruct:  defaultHNSWEFConstruct,
		traceTTL:         defaultTraceTTL,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("resmatch: database address required (use WithValkey)")
	}
	if cfg.vectorDimensions <= 0 {
		return nil, fmt.Errorf("resmatch: invalid vector dimensions %d", cfg.vectorDimensions)
	}

	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("resmatch: create valkey store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("resmatch: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// wireClient builds the same service graph the HTTP server runs, minus the
// scheduler: learning runs when the caller asks for it.
func wireClient(ctx context.Context, store *dbValkey.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	logger := zap.NewNop()
	prefix := cfg.keyPrefix

	resourceRepo := resourcerepo.New(store, prefix, cfg.vectorDimensions, resourcerepo.HNSWConfig{
		M:              cfg.hnswM,
		EFConstruction: cfg.hnswEFConstruct,
	})
	searchRepo := searchrepo.New(store, resourceRepo.IndexName(), resourceRepo.KeyPrefix())
	feedbackRepo := feedbackrepo.New(store, prefix, logger)
	snapshotRepo := snapshotrepo.New(store, prefix)
	traceRepo := tracerepo.New(store, prefix, cfg.traceTTL)

	indexSvc := indexuc.New(resourceRepo, searchRepo, indexuc.Config{
		Dimensions:      cfg.vectorDimensions,
		Mode:            indexuc.ModeAuto,
		MaxTopK:         200,
		Overfetch:       2,
		ANNMinResources: 5000,
		RecallThreshold: 0.5,
		RecallTarget:    0.9,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}, logger)
	if err := indexSvc.Load(ctx); err != nil {
		return nil, fmt.Errorf("resmatch: load resources: %w", err)
	}

	learningSvc := learning.New(feedbackRepo, snapshotRepo, traceRepo, indexSvc, learning.Config{}, logger)
	if err := learningSvc.Load(ctx); err != nil {
		return nil, fmt.Errorf("resmatch: load insights: %w", err)
	}

	var embedder domain.Embedder
	if cfg.embedder != nil {
		embedder = embeddinguc.NewGuardedEmbedder(&embedderAdapter{inner: cfg.embedder}, embeddinguc.Config{
			Name:            "sdk-embedder",
			Dimensions:      cfg.vectorDimensions,
			Timeout:         2 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		}, logger)
	}

	pipelineSvc := pipeline.New(
		indexSvc,
		ranking.New(ranking.Config{}),
		explain.New(explain.Config{}),
		learningSvc,
		traceRepo,
		embedder,
		pipeline.Config{SupportedLanguages: cfg.supportedLangs},
		logger,
	)

	return &Client{
		store:       store,
		dims:        cfg.vectorDimensions,
		recommender: pipelineSvc,
		feedbackSvc: feedbackuc.New(feedbackRepo, indexSvc, traceRepo, feedbackuc.Config{}, logger),
		index:       indexSvc,
		learner:     learningSvc,
		healthSvc:   healthuc.New(store, nil, indexSvc, learningSvc),
		obs:         obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Recommend runs one query through the matching pipeline. Queries that
// cannot be served as asked come back with Guidance set and a nil error.
func (c *Client) Recommend(ctx context.Context, req Request) (set RecommendationSet, err error) {
	start := time.Now()
	defer func() { c.obs.observe("recommend", start, err) }()

	set, err = c.recommender.Recommend(ctx, req)
	if err != nil {
		return RecommendationSet{}, fmt.Errorf("recommend: %w", err)
	}
	c.obs.observeSet(&set)
	return set, nil
}

// SubmitFeedback records the outcome of a delivered recommendation.
func (c *Client) SubmitFeedback(ctx context.Context, f Feedback) (ack Acknowledgment, err error) {
	start := time.Now()
	defer func() { c.obs.observe("submit_feedback", start, err) }()

	ack, err = c.feedbackSvc.Submit(ctx, f)
	if err != nil {
		return Acknowledgment{}, fmt.Errorf("submit feedback: %w", err)
	}
	return ack, nil
}

// PutResource creates or replaces a catalog entry. The embedding is
// normalized before it is stored.
func (c *Client) PutResource(
	ctx context.Context, id string, attrs ResourceAttributes, embedding []float32,
) (res Resource, err error) {
	start := time.Now()
	defer func() { c.obs.observe("put_resource", start, err) }()

	r, err := domres.New(id, attrs, embedding, c.dims)
	if err != nil {
		return Resource{}, fmt.Errorf("put resource: %w", err)
	}
	stored, err := c.index.Upsert(ctx, r)
	if err != nil {
		return Resource{}, fmt.Errorf("put resource: %w", err)
	}
	return toResource(&stored), nil
}

// GetResource returns one catalog entry.
func (c *Client) GetResource(ctx context.Context, id string) (res Resource, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get_resource", start, err) }()

	r, err := c.index.Get(ctx, id)
	if err != nil {
		return Resource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	return toResource(&r), nil
}

// FlagResource marks a resource for human review.
func (c *Client) FlagResource(ctx context.Context, id, reason string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("flag_resource", start, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("flag resource: %w: reason is required", domain.ErrInvalidResource)
	}
	if err = c.index.Flag(ctx, id, reason); err != nil {
		return fmt.Errorf("flag resource %s: %w", id, err)
	}
	return nil
}

// RunLearning runs one learning cycle over the feedback received since the
// last published snapshot. It returns ErrLearningInProgress when a cycle is
// already running in this process.
func (c *Client) RunLearning(ctx context.Context) (res CycleResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("run_learning", start, err) }()

	res, err = c.learner.RunCycle(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("run learning: %w", err)
	}
	return res, nil
}

// RunEmbeddingLearning nudges resource embeddings toward the queries they
// served well.
func (c *Client) RunEmbeddingLearning(ctx context.Context) (res EmbeddingCycleResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("run_embedding_learning", start, err) }()

	res, err = c.learner.RunEmbeddingCycle(ctx)
	if err != nil {
		return EmbeddingCycleResult{}, fmt.Errorf("run embedding learning: %w", err)
	}
	return res, nil
}

// LatestInsights returns the published snapshot's patterns ordered by
// resource then signature. A non-empty resourceID restricts the list.
func (c *Client) LatestInsights(resourceID string) Insights {
	snap := c.learner.Current()
	out := Insights{
		Version:   snap.Version(),
		CreatedAt: snap.CreatedAt(),
		Patterns:  make([]Pattern, 0, snap.Len()),
	}
	for k, p := range snap.Patterns() {
		if resourceID != "" && k.ResourceID != resourceID {
			continue
		}
		out.Patterns = append(out.Patterns, Pattern{
			ResourceID:        k.ResourceID,
			Signature:         k.Signature,
			HistoricalSuccess: p.HistoricalSuccess,
			SampleSize:        p.SampleSize,
			UpdatedAt:         p.UpdatedAt,
		})
	}
	slices.SortFunc(out.Patterns, func(a, b Pattern) int {
		return cmp.Or(cmp.Compare(a.ResourceID, b.ResourceID), cmp.Compare(a.Signature, b.Signature))
	})
	return out
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    domain.Normalize(r.Embedding),
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
