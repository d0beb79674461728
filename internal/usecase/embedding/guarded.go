// Package embedding wraps the upstream query embedder with the guards the
// request path needs: a per-call timeout, a circuit breaker and a dimension
// check.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/metrics"
)

// Config tunes the guard.
type Config struct {
	Name            string
	Dimensions      int
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// GuardedEmbedder fails fast when the upstream embedder misbehaves.
type GuardedEmbedder struct {
	inner   domain.Embedder
	cfg     Config
	breaker *gobreaker.CircuitBreaker[domain.EmbeddingResult]
	logger  *zap.Logger
}

// NewGuardedEmbedder wraps inner.
func NewGuardedEmbedder(inner domain.Embedder, cfg Config, logger *zap.Logger) *GuardedEmbedder {
	if cfg.Name == "" {
		cfg.Name = "embedder"
	}
	return &GuardedEmbedder{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker[domain.EmbeddingResult](gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= max(cfg.BreakerFailures, 1)
			},
			IsSuccessful: func(err error) bool {
				// Caller cancellation says nothing about upstream health.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
				metrics.ObserveBreaker(name, from, to)
			},
		}),
	}
}

// Embed vectorizes text through the breaker. Every failure is reported as
// domain.ErrEmbeddingProviderError.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := g.breaker.Execute(func() (domain.EmbeddingResult, error) {
		callCtx := ctx
		if g.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
		}
		r, err := g.inner.Embed(callCtx, text)
		if err != nil {
			return domain.EmbeddingResult{}, err
		}
		if g.cfg.Dimensions > 0 {
			if err := domain.ValidateVector(r.Embedding, g.cfg.Dimensions); err != nil {
				return domain.EmbeddingResult{}, err
			}
		}
		return r, nil
	})
	duration := time.Since(start)

	if err != nil {
		g.logger.Warn("Query embedding failed",
			zap.String("breaker", g.cfg.Name),
			zap.String("breaker_state", g.breaker.State().String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		if errors.Is(err, domain.ErrEmbeddingProviderError) {
			return domain.EmbeddingResult{}, err
		}
		return domain.EmbeddingResult{}, fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingProviderError, err)
	}

	g.logger.Debug("Query embedding completed",
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// State reports the breaker state.
func (g *GuardedEmbedder) State() string {
	return g.breaker.State().String()
}
