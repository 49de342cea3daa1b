package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/medscript-analyzer/internal/adapters/http"
	"github.com/kirillkom/medscript-analyzer/internal/bootstrap"
	"github.com/kirillkom/medscript-analyzer/internal/config"
	"github.com/kirillkom/medscript-analyzer/internal/observability/logging"
	"github.com/kirillkom/medscript-analyzer/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Role:     bootstrap.RoleAPI,
		Logger:   logger,
		Registry: httpMetrics.Registry(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	router := httpadapter.NewRouter(cfg, app.UploadUC, app.QueryUC,
		httpadapter.WithMetrics(httpMetrics),
		httpadapter.WithHealthCheck(app.HealthCheck),
		httpadapter.WithLogger(logger),
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr, "dispatch", cfg.JobDispatch, "record_store", cfg.RecordStore)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.JobTimeout)
	defer cancelDrain()
	app.Shutdown(drainCtx)
	logger.Info("api_stopped")
}
