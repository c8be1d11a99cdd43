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

	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/core/usecase"
	"github.com/kirillkom/support-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/support-assistant/internal/observability/logging"
	"github.com/kirillkom/support-assistant/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATSURL == "" {
		log.Fatalf("worker requires NATS_URL")
	}

	m := metrics.NewWorkerMetrics("worker")
	exec := resilience.NewExecutor(cfg.StoreResilience())
	events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: exec})
	if err != nil {
		log.Fatalf("nats connect error: %v", err)
	}
	defer events.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	notifier := usecase.NewCaseNotifier(m)
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	if err := events.SubscribeCaseCreated(ctx, notifier.HandleCaseCreated); err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
