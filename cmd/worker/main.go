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

	"github.com/nreshetnikov/image-recognition-service/internal/bootstrap"
	"github.com/nreshetnikov/image-recognition-service/internal/config"
	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/observability/logging"
	"github.com/nreshetnikov/image-recognition-service/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics.Handler(), logger)
	defer stopMetricsServer(metricsServer, logger)

	processor := app.NewRecognizeUseCase(
		metrics.NewInstrumentedResultCache(app.Cache, workerMetrics, serviceName),
		metrics.NewInstrumentedProvider(app.Provider, workerMetrics, serviceName),
		logger,
	)

	logger.Info("worker subscribed", "subject", cfg.NATSStorageSubject)
	err = app.Bus.SubscribeBlobStored(ctx, func(handlerCtx context.Context, event domain.StorageEvent) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartTask()
		start := time.Now()
		processErr := processor.Process(processCtx, event)
		workerMetrics.FinishTask(serviceName, time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func startMetricsServer(port string, handler http.Handler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}

func stopMetricsServer(server *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}
}
