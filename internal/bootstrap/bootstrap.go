package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/showjihyun/agentrag-v1-sub018/internal/config"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/usecase"
	"github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/cache"
	"github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/llm/ollama"
	natsqueue "github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/queue/nats"
	"github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/repository/postgres"
	"github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/resilience"
	"github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/vector/qdrant"
	"github.com/showjihyun/agentrag-v1-sub018/internal/observability/logging"
)

type App struct {
	Config config.Config

	Router     ports.QueryRouter
	Feedback   ports.FeedbackRecorder
	Admin      ports.ThresholdAdmin
	Tuner      ports.TuningService
	Queue      ports.OutcomeQueue
	Outcomes   ports.OutcomeStore
	Audit      ports.TuningAuditStore
	Thresholds *usecase.ThresholdStore

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logging.Setup("adaptive-query-router", cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	outcomes := postgres.NewOutcomeRepository(db)
	if err := outcomes.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	audit := postgres.NewTuningRepository(db)

	local := cache.NewMemory(cfg.CacheLocalCapacity)
	local.StartSweep(ctx, cfg.CacheSweepInterval)

	// The shared tier is best effort: a missing redis degrades the cache
	// to local-only instead of failing startup.
	var shared *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient, redisErr := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if redisErr != nil {
			slog.Warn("redis unavailable, running with local cache only", "error", redisErr)
		} else {
			shared = cache.NewRedis(redisClient)
		}
	}
	responseCache := cache.NewMultiLevel(local, shared)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	retriever := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSOutcomeSubj, cfg.NATSAdminSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init outcome queue: %w", err)
	}

	thresholds, err := usecase.NewThresholdStore(domain.ThresholdSet{
		ComplexitySimple:  cfg.ComplexityThresholdSimple,
		ComplexityComplex: cfg.ComplexityThresholdComplex,
		ConfidenceHigh:    cfg.ConfidenceThresholdHigh,
		ConfidenceLow:     cfg.ConfidenceThresholdLow,
	})
	if err != nil {
		return nil, fmt.Errorf("init thresholds: %w", err)
	}

	profiles, err := usecase.NewModeProfileRegistry(
		domain.ModeProfile{Timeout: cfg.FastTimeout, TopK: cfg.FastTopK, CacheTTL: cfg.FastCacheTTL},
		domain.ModeProfile{Timeout: cfg.BalancedTimeout, TopK: cfg.BalancedTopK, CacheTTL: cfg.BalancedCacheTTL},
		domain.ModeProfile{Timeout: cfg.DeepTimeout, TopK: cfg.DeepTopK, CacheTTL: cfg.DeepCacheTTL},
	)
	if err != nil {
		return nil, fmt.Errorf("init mode profiles: %w", err)
	}

	escalationTarget, ok := domain.ParseMode(cfg.EscalationTarget)
	if !ok {
		return nil, fmt.Errorf("invalid escalation target %q", cfg.EscalationTarget)
	}

	scorer := usecase.NewConfidenceScorer(usecase.ConfidenceWeights{
		Similarity:   cfg.ConfidenceSimilarityWeight,
		PassageCount: cfg.ConfidenceCountWeight,
		CacheHit:     cfg.ConfidenceCacheWeight,
		History:      cfg.ConfidenceHistoryWeight,
	})

	speculative := usecase.NewSpeculativeExecutor(
		embedder, retriever, generator, responseCache, scorer, cfg.SpeculativeTemperature)
	fusion := usecase.NewRAGFusion(
		generator, embedder, retriever,
		cfg.FusionRRFK, cfg.FusionMaxPerspectives, cfg.FusionTemperature, 0)

	router := usecase.NewAdaptiveRouter(usecase.AdaptiveRouterDeps{
		Classifier:      usecase.NewComplexityClassifier(),
		Profiles:        profiles,
		Thresholds:      thresholds,
		Speculative:     speculative,
		Policy:          usecase.NewEscalationPolicy(escalationTarget),
		Fusion:          fusion,
		Diversifier:     usecase.NewMMRDiversifier(cfg.MMRLambda),
		Generator:       generator,
		Scorer:          scorer,
		Cache:           responseCache,
		Queue:           queue,
		AdaptiveEnabled: cfg.AdaptiveRoutingEnabled,
		DeepTemperature: cfg.FusionTemperature,
	})

	tuner := usecase.NewThresholdTuner(outcomes, audit, queue, thresholds, usecase.TunerConfig{
		Window:           cfg.TuningWindow,
		MinSamples:       cfg.TuningMinSamples,
		Step:             cfg.TuningStep,
		RegressionMargin: cfg.TuningRegressionMargin,
		Targets: usecase.TargetShares{
			FastMin:     cfg.TargetFastMin,
			FastMax:     cfg.TargetFastMax,
			BalancedMin: cfg.TargetBalancedMin,
			BalancedMax: cfg.TargetBalancedMax,
			DeepMin:     cfg.TargetDeepMin,
			DeepMax:     cfg.TargetDeepMax,
		},
	})

	return &App{
		Config: cfg,

		Router:     router,
		Feedback:   usecase.NewFeedbackService(outcomes),
		Admin:      usecase.NewThresholdAdminService(thresholds),
		Tuner:      tuner,
		Queue:      queue,
		Outcomes:   outcomes,
		Audit:      audit,
		Thresholds: thresholds,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
