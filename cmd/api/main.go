package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/showjihyun/agentrag-v1-sub018/internal/adapters/http"
	"github.com/showjihyun/agentrag-v1-sub018/internal/bootstrap"
	"github.com/showjihyun/agentrag-v1-sub018/internal/config"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)
	recordThresholds(serverMetrics, app.Thresholds.Current())

	router := httpadapter.NewRouter(
		app.Router,
		app.Feedback,
		app.Admin,
		app.Tuner,
		app.Audit,
		serverMetrics,
		serviceName,
		httpadapter.TrafficConfig{
			RateLimitRPS:     cfg.APIRateLimitRPS,
			RateLimitBurst:   cfg.APIRateLimitBurst,
			MaxInFlight:      cfg.APIMaxInFlight,
			BackpressureWait: cfg.APIBackpressureWait,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	if cfg.AutoTuningEnabled {
		go runTuningLoop(ctx, app, serverMetrics, cfg)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}

func runTuningLoop(ctx context.Context, app *bootstrap.App, serverMetrics *metrics.HTTPServerMetrics, cfg config.Config) {
	ticker := time.NewTicker(cfg.TuningInterval)
	defer ticker.Stop()

	slog.Info("threshold tuning loop started",
		"interval", cfg.TuningInterval.String(),
		"dry_run", cfg.TuningDryRun,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := app.Tuner.RunOnce(ctx, cfg.TuningDryRun)
			if err != nil {
				if domain.IsKind(err, domain.ErrInsufficientData) {
					slog.Debug("tuning skipped, not enough outcomes", "error", err)
				} else {
					slog.Warn("tuning run failed", "error", err)
				}
				continue
			}

			serverMetrics.RecordTuningRun(serviceName, tuningResultLabel(result))
			recordThresholds(serverMetrics, app.Thresholds.Current())
			slog.Info("tuning run finished",
				"id", result.ID,
				"applied", result.Applied,
				"dry_run", result.DryRun,
				"rolled_back", result.RolledBack,
				"reason", result.Reason,
			)
		}
	}
}

func tuningResultLabel(result *domain.TuningResult) string {
	switch {
	case result.RolledBack:
		return "rolled_back"
	case result.DryRun:
		return "dry_run"
	case result.Applied:
		return "applied"
	default:
		return "skipped"
	}
}

func recordThresholds(serverMetrics *metrics.HTTPServerMetrics, set domain.ThresholdSet) {
	serverMetrics.RecordThresholds(
		serviceName,
		set.ComplexitySimple,
		set.ComplexityComplex,
		set.ConfidenceHigh,
		set.ConfidenceLow,
	)
}
