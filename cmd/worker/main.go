package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/bootstrap"
	"github.com/showjihyun/agentrag-v1-sub018/internal/config"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	go serveMetrics(ctx, cfg.WorkerMetricsPort, workerMetrics)

	slog.Info("worker subscribed", "subject", cfg.NATSOutcomeSubj)
	err = app.Queue.SubscribeOutcomes(ctx, func(handlerCtx context.Context, outcome domain.RoutingOutcome) error {
		workerMetrics.ObserveQueueLag(serviceName, time.Since(outcome.CreatedAt))
		workerMetrics.StartOutcome()
		start := time.Now()

		appendCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		appendErr := app.Outcomes.Append(appendCtx, outcome)

		workerMetrics.FinishOutcome(serviceName, time.Since(start), appendErr)
		return appendErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func serveMetrics(ctx context.Context, port string, workerMetrics *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("worker metrics server error", "error", err)
	}
}
