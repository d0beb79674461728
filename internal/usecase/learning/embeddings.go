package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/metrics"
)

// displacement accumulates the contrastive pull on one resource.
type displacement struct {
	sum   []float64
	pairs int
}

// RunEmbeddingCycle nudges resource embeddings toward the queries they
// helped and away from the ones they did not. It reads feedback in the
// lookback window that no earlier successful cycle applied. Each resource
// moves at most MaxDisplacement and is swapped into the index on its own.
func (s *Service) RunEmbeddingCycle(ctx context.Context) (EmbeddingResult, error) {
	if !s.embMu.TryLock() {
		return EmbeddingResult{}, domain.ErrLearningInProgress
	}
	defer s.embMu.Unlock()

	start := s.now()
	s.status.update(func(st *Status) { st.EmbeddingRunning = true })

	res, err := s.runEmbeddingCycle(ctx)

	s.status.update(func(st *Status) {
		st.EmbeddingRunning = false
		st.EmbeddingLastRun = start
		st.EmbeddingLast = res
		st.EmbeddingLastErr = ""
		if err != nil {
			st.EmbeddingLastErr = err.Error()
		}
	})
	if err != nil {
		metrics.LearningCyclesTotal.WithLabelValues("embeddings", "error").Inc()
		s.logger.Error("Embedding cycle failed", zap.Error(err))
		return res, err
	}
	metrics.LearningCyclesTotal.WithLabelValues("embeddings", "ok").Inc()
	s.logger.Info("Embedding cycle complete",
		zap.Int("pairs", res.Pairs), zap.Int("updated", res.Updated), zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Service) runEmbeddingCycle(ctx context.Context) (EmbeddingResult, error) {
	var res EmbeddingResult

	moves, pairs, cursor, err := s.collectDisplacements(ctx, s.embeddingStart())
	if err != nil {
		return res, err
	}
	res.Pairs = pairs
	if len(moves) == 0 {
		s.embCursor = cursor
		return res, nil
	}

	ids := make([]string, 0, len(moves))
	for id := range moves {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	limiter := rate.NewLimiter(rate.Limit(s.cfg.WritesPerSecond), 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbeddingWorkers)

	var updated, failed atomic.Int64
	for _, id := range ids {
		d := moves[id]
		g.Go(func() error {
			r, ok := s.index.Lookup(id)
			if !ok {
				return nil
			}
			next := applyDisplacement(r.Embedding(), d, s.cfg.LearningRate, s.cfg.MaxDisplacement)
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			if err := s.index.SwapEmbedding(gctx, id, next); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed.Add(1)
				s.logger.Warn("Embedding update failed", zap.String("resource_id", id), zap.Error(err))
				return nil
			}
			updated.Add(1)
			metrics.LearningEmbeddingUpdates.Inc()
			return nil
		})
	}
	err = g.Wait()
	res.Updated = int(updated.Load())
	res.Failed = int(failed.Load())
	if err != nil {
		return res, fmt.Errorf("apply embedding updates: %w", err)
	}
	s.embCursor = cursor
	return res, nil
}

// embeddingStart is the later of the lookback window start and the last
// applied entry. The cursor lives in memory, so a restart rescans the window once.
func (s *Service) embeddingStart() string {
	// Ledger ids are millisecond timestamps, so a synthetic id marks the window start.
	window := strconv.FormatInt(s.now().Add(-s.cfg.Lookback).UnixMilli(), 10) + "-0"
	if s.embCursor != "" && !ledgerBefore(s.embCursor, window) {
		return s.embCursor
	}
	return window
}

// ledgerBefore orders "<ms>-<seq>" ledger ids.
func ledgerBefore(a, b string) bool {
	am, as := splitLedgerID(a)
	bm, bs := splitLedgerID(b)
	return am < bm || (am == bm && as < bs)
}

func splitLedgerID(id string) (int64, int64) {
	msPart, seqPart, _ := strings.Cut(id, "-")
	ms, _ := strconv.ParseInt(msPart, 10, 64)
	seq, _ := strconv.ParseInt(seqPart, 10, 64)
	return ms, seq
}

// collectDisplacements scans feedback after cursor and sums sign·(q − r)
// per resource for every pair whose query embedding is known. It returns
// the last entry read.
func (s *Service) collectDisplacements(
	ctx context.Context, cursor string,
) (map[string]*displacement, int, string, error) {
	moves := map[string]*displacement{}
	traces := newTraceCache(s.traces)
	pairs := 0

	for {
		entries, err := s.ledger.Since(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return nil, 0, "", fmt.Errorf("read feedback: %w", err)
		}
		for _, e := range entries {
			cursor = e.Cursor
			f := e.Feedback
			if f.ResourceID == "" {
				continue
			}
			tr, ok := traces.get(ctx, f.QueryID, s.logger)
			if !ok || len(tr.Embedding) == 0 {
				continue
			}
			r, ok := s.index.Lookup(f.ResourceID)
			if !ok || len(r.Embedding()) != len(tr.Embedding) {
				continue
			}
			sign := -1.0
			if f.Helpful {
				sign = 1.0
			}
			d := moves[f.ResourceID]
			if d == nil {
				d = &displacement{sum: make([]float64, len(tr.Embedding))}
				moves[f.ResourceID] = d
			}
			q := domain.Normalize(tr.Embedding)
			for i, rv := range r.Embedding() {
				d.sum[i] += sign * (float64(q[i]) - float64(rv))
			}
			d.pairs++
			pairs++
		}
		if len(entries) < s.cfg.BatchSize {
			break
		}
	}
	return moves, pairs, cursor, nil
}

// applyDisplacement moves r by the clipped mean displacement. The caller
// re-normalizes through the index.
func applyDisplacement(r []float32, d *displacement, eta, maxStep float64) []float32 {
	step := make([]float64, len(r))
	var norm float64
	for i, v := range d.sum {
		step[i] = eta * v / float64(d.pairs)
		norm += step[i] * step[i]
	}
	norm = math.Sqrt(norm)
	scale := 1.0
	if norm > maxStep && norm > 0 {
		scale = maxStep / norm
	}
	out := make([]float32, len(r))
	for i, v := range r {
		out[i] = float32(float64(v) + step[i]*scale)
	}
	return out
}
