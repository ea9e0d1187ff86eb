package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"opportunity-recommender/internal/api"
	"opportunity-recommender/internal/app"
	"opportunity-recommender/internal/common/camunda"
	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/common/logger"

	bo "opportunity-recommender/internal/workers/catalog/browse-opportunities"
	ro "opportunity-recommender/internal/workers/recommendation/recommend-opportunities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting opportunity recommender...",
		zap.String("environment", cfg.App.Environment),
		zap.String("backend", cfg.Catalog.Backend),
		zap.String("embedding", cfg.Embedding.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Connect(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("backend connection failed", zap.Error(err))
	}
	defer backends.Close(context.Background())

	a, err := app.Build(ctx, cfg, backends, log)
	if err != nil {
		zapLog.Fatal("assembly failed", zap.Error(err))
	}
	defer a.Obs.Shutdown()

	checks := make(map[string]api.Check)
	for name, check := range backends.Checks() {
		checks[name] = check
	}

	var workers []worker.JobWorker
	var zeebe *camunda.Client
	if cfg.Camunda.BrokerAddress != "" {
		err = app.RetryWithBackoff(ctx, func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda)
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		checks["zeebe"] = zeebe.HealthCheck
		zapLog.Info("Zeebe client connected successfully")

		roCfg := config.GetWorkerConfig(cfg, ro.TaskType)
		roHandler := ro.NewHandler(ro.LoadConfig(roCfg), a.Service, log)
		if jw := camunda.StartWorker(zeebe.Zeebe(), ro.TaskType, roCfg, roHandler.Handle, log); jw != nil {
			workers = append(workers, jw)
		}

		boCfg := config.GetWorkerConfig(cfg, bo.TaskType)
		boHandler := bo.NewHandler(bo.LoadConfig(boCfg), a.Browser, log)
		if jw := camunda.StartWorker(zeebe.Zeebe(), bo.TaskType, boCfg, boHandler.Handle, log); jw != nil {
			workers = append(workers, jw)
		}
	} else {
		zapLog.Info("camunda.broker_address not set, job workers disabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(api.NewHandler(a.Service, a.Browser, checks, log), cfg.Server),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, jw := range workers {
		jw.Close()
		jw.AwaitClose()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Opportunity recommender stopped gracefully")
}
