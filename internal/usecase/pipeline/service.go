// Package pipeline orchestrates one recommendation query: retrieval,
// eligibility filtering, ranking and explanation under an overall deadline,
// with a keyword fallback when retrieval cannot finish.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
	"github.com/kailas-cloud/resmatch/internal/metrics"
	"github.com/kailas-cloud/resmatch/internal/tracing"
	"github.com/kailas-cloud/resmatch/internal/usecase/ranking"
)

// Degraded reasons.
const (
	DegradedEmbedderUnavailable = "embedder_unavailable"
	DegradedEmbeddingFailed     = "embedding_failed"
	DegradedRetrievalTimeout    = "retrieval_timeout"
	DegradedRetrievalFailed     = "retrieval_failed"
	DegradedDeadline            = "deadline_exceeded"
)

const traceSaveTimeout = 500 * time.Millisecond

// Config holds pipeline settings.
type Config struct {
	Deadline           time.Duration
	DefaultTopK        int
	MaxTopK            int
	MinSimilarity      float64
	MinConfidence      float64
	SupportedLanguages []string
	// CandidateFactor widens retrieval so filtering still leaves TopK results.
	CandidateFactor int
}

// Service runs the recommendation pipeline. It is safe for concurrent use.
type Service struct {
	retriever Retriever
	ranker    Ranker
	explainer Explainer
	insights  Insights
	traces    TraceStore
	embedder  domain.Embedder
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// New creates the orchestrator. embedder may be nil when callers always send vectors.
func New(
	retriever Retriever, ranker Ranker, explainer Explainer, insights Insights,
	traces TraceStore, embedder domain.Embedder, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.Deadline <= 0 {
		cfg.Deadline = 3 * time.Second
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 200
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.CandidateFactor < 1 {
		cfg.CandidateFactor = 3
	}
	for i, l := range cfg.SupportedLanguages {
		cfg.SupportedLanguages[i] = strings.ToLower(l)
	}
	return &Service{
		retriever: retriever,
		ranker:    ranker,
		explainer: explainer,
		insights:  insights,
		traces:    traces,
		embedder:  embedder,
		cfg:       cfg,
		logger:    logger,
		tracer:    tracing.Tracer(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// run carries per-query state between stages.
type run struct {
	req       Request
	topK      int
	lc        *lifecycle
	snapshot  *insight.Snapshot
	embedding []float32
	degraded  []string
	logger    *zap.Logger
}

func (r *run) degrade(reason string) {
	for _, d := range r.degraded {
		if d == reason {
			return
		}
	}
	r.degraded = append(r.degraded, reason)
	metrics.PipelineDegradedTotal.WithLabelValues(reason).Inc()
}

// Recommend serves one query. Input problems produce guidance, upstream
// problems produce a degraded result, and contract violations produce a
// *PipelineError. No other error is returned.
func (s *Service) Recommend(ctx context.Context, req Request) (RecommendationSet, error) {
	if req.QueryID == "" {
		req.QueryID = s.newID()
	}
	ctx, span := s.tracer.Start(ctx, "pipeline.recommend",
		trace.WithAttributes(attribute.String("query.id", req.QueryID)))
	defer span.End()

	set, state, err := s.recommend(ctx, req)
	metrics.PipelineRequestsTotal.WithLabelValues(state).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RecommendationSet{}, err
	}
	span.SetAttributes(
		attribute.Int("results", len(set.Recommendations)),
		attribute.Bool("degraded", set.Degraded),
		attribute.Int64("snapshot.version", set.SnapshotVersion),
	)
	return set, nil
}

func (s *Service) recommend(ctx context.Context, req Request) (RecommendationSet, string, error) {
	logger := s.logger.With(zap.String("query_id", req.QueryID))
	set := RecommendationSet{
		QueryID:                  req.QueryID,
		Recommendations:          []Recommendation{},
		QueryInterpretation:      interpret(&req),
		SuggestionsForRefinement: []string{},
	}

	if g := s.checkInput(&req); g != nil {
		logger.Info("Query needs clarification", zap.String("reason", g.Reason))
		set.Guidance = g
		return set, "guidance", nil
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK < 1 || topK > s.cfg.MaxTopK {
		return set, "failed", newPipelineError(CodeInvalidRequest,
			"top_k must be between 1 and the configured maximum", domain.ErrTopKOutOfRange)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	rn := &run{
		req:      req,
		topK:     topK,
		lc:       newLifecycle(req.QueryID, logger),
		snapshot: s.insights.Current(),
		logger:   logger,
	}
	if rn.snapshot == nil {
		rn.snapshot = insight.Empty()
	}
	set.SnapshotVersion = rn.snapshot.Version()

	if err := s.embed(ctx, rn); err != nil {
		return set, "failed", err
	}

	candidates, err := s.retrieve(ctx, rn)
	if err != nil {
		return set, "failed", err
	}
	if err := rn.lc.advance(StageRetrieved); err != nil {
		return set, "failed", newPipelineError(CodeInternal, "request lifecycle error", err)
	}

	filtered := s.filter(ctx, rn, candidates)
	if err := rn.lc.advance(StageFiltered); err != nil {
		return set, "failed", newPipelineError(CodeInternal, "request lifecycle error", err)
	}

	ranked := s.rank(ctx, rn, filtered)
	if err := rn.lc.advance(StageRanked); err != nil {
		return set, "failed", newPipelineError(CodeInternal, "request lifecycle error", err)
	}
	set.TotalFound = len(ranked.Ranked)
	delivered := ranked.Ranked
	if len(delivered) > topK {
		delivered = delivered[:topK]
	}

	if err := s.explain(ctx, rn, delivered); err != nil {
		return set, "failed", err
	}
	if err := rn.lc.advance(StageExplained); err != nil {
		return set, "failed", newPipelineError(CodeInternal, "request lifecycle error", err)
	}

	for i := range delivered {
		set.Recommendations = append(set.Recommendations, toRecommendation(&delivered[i]))
	}
	set.SuggestionsForRefinement = suggestions(&req, delivered)
	set.Degraded = len(rn.degraded) > 0
	set.DegradedReasons = rn.degraded
	if err := rn.lc.advance(StageDelivered); err != nil {
		return set, "failed", newPipelineError(CodeInternal, "request lifecycle error", err)
	}

	s.saveTrace(ctx, rn, delivered)

	state := "delivered"
	if set.Degraded {
		state = "degraded"
		logger.Warn("Served degraded recommendations", zap.Strings("reasons", rn.degraded))
	}
	logger.Info("Recommendations delivered",
		zap.Int("results", len(set.Recommendations)),
		zap.Int("total_found", set.TotalFound),
		zap.Int64("snapshot_version", set.SnapshotVersion),
	)
	return set, state, nil
}

// embed resolves the query vector. A malformed caller vector is a contract
// violation; an unavailable embedder only degrades the query.
func (s *Service) embed(ctx context.Context, rn *run) error {
	if len(rn.req.Embedding) > 0 {
		if err := domain.ValidateVector(rn.req.Embedding, len(rn.req.Embedding)); err != nil {
			return newPipelineError(CodeInvalidEmbedding, "query embedding is malformed", err)
		}
		rn.embedding = rn.req.Embedding
		return nil
	}

	text := strings.Join(keywords(&rn.req), ". ")
	if s.embedder == nil {
		rn.degrade(DegradedEmbedderUnavailable)
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.embed")
	defer span.End()
	defer observeStage("embed", time.Now())

	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		rn.logger.Warn("Query embedding unavailable, using keyword fallback", zap.Error(err))
		rn.degrade(DegradedEmbeddingFailed)
		return nil
	}
	rn.embedding = res.Embedding
	return nil
}

func (s *Service) retrieve(ctx context.Context, rn *run) ([]domres.Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()
	defer observeStage("retrieve", time.Now())

	limit := min(rn.topK*s.cfg.CandidateFactor, s.cfg.MaxTopK)
	if rn.embedding == nil {
		return s.fallback(rn, limit), nil
	}

	cands, err := s.retriever.Retrieve(ctx, rn.embedding, rn.req.CategoryHint, limit)
	if err == nil && len(cands) == 0 && rn.req.CategoryHint != "" {
		rn.logger.Debug("No candidates in hinted category, widening search",
			zap.String("category_hint", rn.req.CategoryHint))
		cands, err = s.retriever.Retrieve(ctx, rn.embedding, "", limit)
	}
	switch {
	case err == nil:
		span.SetAttributes(attribute.Int("candidates", len(cands)))
		return cands, nil
	case errors.Is(err, domain.ErrVectorDimMismatch), errors.Is(err, domain.ErrMalformedVector):
		return nil, newPipelineError(CodeInvalidEmbedding, "query embedding does not match the index", err)
	case errors.Is(err, domain.ErrTopKOutOfRange):
		return nil, newPipelineError(CodeInvalidRequest, "top_k out of range", err)
	case errors.Is(err, context.DeadlineExceeded):
		span.RecordError(err)
		rn.logger.Warn("Retrieval timed out, using keyword fallback")
		rn.degrade(DegradedRetrievalTimeout)
	default:
		span.RecordError(err)
		rn.logger.Error("Retrieval failed, using keyword fallback", zap.Error(err))
		rn.degrade(DegradedRetrievalFailed)
	}
	return s.fallback(rn, limit), nil
}

func (s *Service) fallback(rn *run, limit int) []domres.Candidate {
	return s.retriever.Fallback(rn.req.CategoryHint, keywords(&rn.req), limit)
}

// filter drops non-matches and stale candidates, then evaluates
// eligibility against the effective context.
func (s *Service) filter(ctx context.Context, rn *run, cands []domres.Candidate) []ranking.Candidate {
	_, span := s.tracer.Start(ctx, "pipeline.filter")
	defer span.End()
	defer observeStage("filter", time.Now())

	demo := query.Effective(rn.req.Context, rn.req.Intent).Demographics
	out := make([]ranking.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Resource == nil || c.Similarity <= s.cfg.MinSimilarity {
			continue
		}
		live, ok := s.retriever.Lookup(c.Resource.ID())
		if !ok || live.Retired() {
			rn.logger.Warn("Dropping stale candidate", zap.String("resource_id", c.Resource.ID()))
			continue
		}
		res := eligibility.Evaluate(live.Eligibility(), demo)
		if len(res.Invalid) > 0 {
			rn.logger.Warn("Resource has invalid eligibility criteria",
				zap.String("resource_id", live.ID()), zap.Strings("criteria", res.Invalid))
		}
		out = append(out, ranking.Candidate{Resource: live, Similarity: c.Similarity, Eligibility: res})
	}
	span.SetAttributes(attribute.Int("kept", len(out)))
	return out
}

func (s *Service) rank(ctx context.Context, rn *run, cands []ranking.Candidate) ranking.Ranking {
	_, span := s.tracer.Start(ctx, "pipeline.rank")
	defer span.End()
	defer observeStage("rank", time.Now())

	if ctx.Err() != nil && len(rn.degraded) == 0 {
		rn.degrade(DegradedDeadline)
	}
	out := s.ranker.Rank(ranking.Request{
		Candidates: cands,
		Intent:     rn.req.Intent,
		Context:    rn.req.Context,
		Snapshot:   rn.snapshot,
	})
	if len(out.Excluded) > 0 {
		span.SetAttributes(attribute.Int("excluded_full", len(out.Excluded)))
	}
	return out
}

func (s *Service) explain(ctx context.Context, rn *run, list []score.Scored) error {
	_, span := s.tracer.Start(ctx, "pipeline.explain")
	defer span.End()
	defer observeStage("explain", time.Now())

	if err := s.explainer.ExplainAll(list, rn.req.Intent); err != nil {
		span.RecordError(err)
		rn.logger.Error("Explanation failed", zap.Error(err))
		if errors.Is(err, domain.ErrMalformedScore) {
			return newPipelineError(CodeMalformedScore, "a recommendation could not be explained", err)
		}
		return newPipelineError(CodeInternal, "explanation failed", err)
	}
	return nil
}

// saveTrace stores the anonymous delivery record. Failures are logged only.
func (s *Service) saveTrace(ctx context.Context, rn *run, delivered []score.Scored) {
	if s.traces == nil || len(delivered) == 0 {
		return
	}
	t := &query.Trace{
		QueryID:     rn.req.QueryID,
		PrimaryNeed: rn.req.Intent.PrimaryNeed,
		Urgency:     rn.req.Intent.Urgency,
		Embedding:   rn.embedding,
		Delivered:   make([]string, len(delivered)),
		Categories:  make([]string, len(delivered)),
		Degraded:    len(rn.degraded) > 0,
		CreatedAt:   s.now().UTC(),
	}
	for i := range delivered {
		t.Delivered[i] = delivered[i].Resource.ID()
		t.Categories[i] = delivered[i].Resource.Category()
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceSaveTimeout)
	defer cancel()
	if err := s.traces.Save(saveCtx, t); err != nil {
		rn.logger.Warn("Failed to store query trace", zap.Error(err))
	}
}

func observeStage(stage string, start time.Time) {
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
