package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/config"
	dbValkey "github.com/kailas-cloud/resmatch/internal/db/valkey"
	"github.com/kailas-cloud/resmatch/internal/domain"
	logpkg "github.com/kailas-cloud/resmatch/internal/logger"
	"github.com/kailas-cloud/resmatch/internal/metrics"
	"github.com/kailas-cloud/resmatch/internal/repository/embcache"
	feedbackrepo "github.com/kailas-cloud/resmatch/internal/repository/feedback"
	resourcerepo "github.com/kailas-cloud/resmatch/internal/repository/resource"
	searchrepo "github.com/kailas-cloud/resmatch/internal/repository/search"
	snapshotrepo "github.com/kailas-cloud/resmatch/internal/repository/snapshot"
	tracerepo "github.com/kailas-cloud/resmatch/internal/repository/trace"
	"github.com/kailas-cloud/resmatch/internal/scheduler"
	"github.com/kailas-cloud/resmatch/internal/tracing"
	chiTransport "github.com/kailas-cloud/resmatch/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/resmatch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/resmatch/internal/usecase/embedding"
	"github.com/kailas-cloud/resmatch/internal/usecase/explain"
	feedbackuc "github.com/kailas-cloud/resmatch/internal/usecase/feedback"
	healthuc "github.com/kailas-cloud/resmatch/internal/usecase/health"
	indexuc "github.com/kailas-cloud/resmatch/internal/usecase/index"
	"github.com/kailas-cloud/resmatch/internal/usecase/learning"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
	"github.com/kailas-cloud/resmatch/internal/usecase/ranking"
	"github.com/kailas-cloud/resmatch/internal/version"
)

const jobTimeout = 30 * time.Minute

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting resmatch",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Int("dimensions", cfg.Index.Dimensions),
	)

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "resmatch",
		Version:     version.Version,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}

	// Explicit registration, no init().
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEngineMetrics()
	metrics.RegisterHTTPMetrics()

	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	prefix := cfg.Storage.KeyPrefix
	resourceRepo := resourcerepo.New(store, prefix, cfg.Index.Dimensions, resourcerepo.HNSWConfig{
		M:              cfg.Index.HNSWM,
		EFConstruction: cfg.Index.HNSWEFConstruct,
	})
	searchRepo := searchrepo.New(store, resourceRepo.IndexName(), resourceRepo.KeyPrefix())
	feedbackRepo := feedbackrepo.New(store, prefix, logger)
	snapshotRepo := snapshotrepo.New(store, prefix)
	traceRepo := tracerepo.New(store, prefix, time.Duration(cfg.Pipeline.TraceTTLHours)*time.Hour)

	indexSvc := indexuc.New(resourceRepo, searchRepo, indexuc.Config{
		Dimensions:        cfg.Index.Dimensions,
		Mode:              cfg.Index.Mode,
		MaxTopK:           cfg.Index.MaxTopK,
		Overfetch:         cfg.Index.Overfetch,
		ANNMinResources:   cfg.Index.ANNMinResources,
		RecallSampleEvery: cfg.Index.RecallSampleEvery,
		RecallThreshold:   cfg.Index.RecallThreshold,
		RecallTarget:      cfg.Index.RecallTarget,
		BreakerFailures:   cfg.Index.BreakerFailures,
		BreakerTimeout:    time.Duration(cfg.Index.BreakerTimeoutSec) * time.Second,
	}, logger)
	if err := indexSvc.Load(ctx); err != nil {
		logger.Fatal("Failed to load resource index", zap.Error(err))
	}

	learningSvc := learning.New(feedbackRepo, snapshotRepo, traceRepo, indexSvc, learning.Config{
		MinSamples:       cfg.Learning.MinSamples,
		Smoothing:        cfg.Learning.SmoothingFactor,
		BatchSize:        cfg.Learning.BatchSize,
		LearningRate:     cfg.Learning.LearningRate,
		MaxDisplacement:  cfg.Learning.MaxDisplacement,
		WritesPerSecond:  cfg.Learning.WritesPerSecond,
		EmbeddingWorkers: cfg.Learning.EmbeddingWorkers,
		Lookback:         time.Duration(cfg.Learning.EmbeddingLookbackH) * time.Hour,
	}, logger)
	if err := learningSvc.Load(ctx); err != nil {
		logger.Fatal("Failed to load insight snapshot", zap.Error(err))
	}

	feedbackSvc := feedbackuc.New(feedbackRepo, indexSvc, traceRepo, feedbackuc.Config{
		MaxCommentLength: cfg.Feedback.MaxCommentLength,
	}, logger)

	embedder, embeddingChecker := buildEmbedder(cfg, store, logger)

	pipelineSvc := pipeline.New(
		indexSvc,
		ranking.New(ranking.Config{GeoHalfLifeMiles: cfg.Ranking.GeoHalfLifeMiles}),
		explain.New(explain.Config{MinContribution: cfg.Explain.MinContribution}),
		learningSvc,
		traceRepo,
		embedder,
		pipeline.Config{
			Deadline:           time.Duration(cfg.Pipeline.DeadlineMs) * time.Millisecond,
			DefaultTopK:        cfg.Pipeline.DefaultTopK,
			MaxTopK:            cfg.Index.MaxTopK,
			MinSimilarity:      cfg.Pipeline.MinSimilarity,
			MinConfidence:      cfg.Pipeline.MinConfidence,
			SupportedLanguages: cfg.Pipeline.SupportedLanguages,
		},
		logger,
	)

	healthSvc := healthuc.New(store, embeddingChecker, indexSvc, learningSvc)

	sched := scheduler.New(logger, jobTimeout)
	if cfg.Learning.Enabled {
		if err := sched.Add("insights", cfg.Learning.Schedule, func(ctx context.Context) error {
			_, err := learningSvc.RunCycle(ctx)
			return err
		}); err != nil {
			logger.Fatal("Failed to schedule learning", zap.Error(err))
		}
		if err := sched.Add("embeddings", cfg.Learning.EmbeddingSchedule, func(ctx context.Context) error {
			_, err := learningSvc.RunEmbeddingCycle(ctx)
			return err
		}); err != nil {
			logger.Fatal("Failed to schedule embedding updates", zap.Error(err))
		}
		sched.Start()
	}

	server := chiTransport.NewServer(pipelineSvc, feedbackSvc, indexSvc, learningSvc, healthSvc, chiTransport.Config{
		Dimensions:        cfg.Index.Dimensions,
		FeedbackPerMinute: cfg.Feedback.RequestsPerMinute,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping scheduler", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Error flushing traces", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the query embedder chain:
// OpenAI -> Cached -> Instruction -> Guarded. Both results are nil when no
// upstream is configured, so queries without a vector take the degraded path.
func buildEmbedder(
	cfg config.Config, store *dbValkey.Store, logger *zap.Logger,
) (domain.Embedder, healthuc.EmbeddingChecker) {
	if !cfg.Embedding.Enabled() {
		logger.Warn("No upstream embedder configured; text-only queries will be degraded")
		return nil, nil
	}

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Index.Dimensions,
		Provider:   "openai-compatible",
		Logger:     logger,
	})

	var embedder domain.Embedder = embcache.New(base, store, embcache.Options{
		Prefix:     cfg.Storage.KeyPrefix,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Index.Dimensions,
		TTL:        time.Duration(cfg.Embedding.CacheTTLSec) * time.Second,
	}, metrics.EmbeddingCacheTotal, logger)

	// The instruction prefix is part of the cache key.
	if cfg.Embedding.Instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.Embedding.Instruction)
	}

	guarded := embeddinguc.NewGuardedEmbedder(embedder, embeddinguc.Config{
		Name:            "embedder",
		Dimensions:      cfg.Index.Dimensions,
		Timeout:         time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}, logger)

	logger.Info("Upstream embedder configured",
		zap.String("base_url", cfg.Embedding.BaseURL),
		zap.String("model", cfg.Embedding.Model))
	return guarded, base
}
