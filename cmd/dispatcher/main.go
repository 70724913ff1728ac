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
	"github.com/nreshetnikov/image-recognition-service/internal/observability/logging"
	"github.com/nreshetnikov/image-recognition-service/internal/observability/metrics"
)

const serviceName = "dispatcher"

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

	dispatcherMetrics := metrics.NewDispatcherMetrics(serviceName)
	metricsServer := startMetricsServer(cfg.DispatcherMetricsPort, dispatcherMetrics.Handler(), logger)
	defer stopMetricsServer(metricsServer, logger)

	logger.Info("dispatcher subscribed", "subject", cfg.NATSTasksSubject)
	err = app.Bus.SubscribeTaskChanged(ctx, func(handlerCtx context.Context, taskID string) error {
		dispatchCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()

		dispatcherMetrics.StartDispatch()
		start := time.Now()
		dispatchErr := app.CallbackUC.Dispatch(dispatchCtx, taskID)
		outcome := "ok"
		if dispatchErr != nil {
			outcome = "error"
		}
		dispatcherMetrics.FinishDispatch(serviceName, outcome, time.Since(start))
		return dispatchErr
	})
	if err != nil {
		log.Fatalf("dispatcher subscribe error: %v", err)
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
