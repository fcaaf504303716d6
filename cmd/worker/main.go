package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/threeway/internal/app"
	"github.com/odyssey-erp/threeway/internal/observability"
	"github.com/odyssey-erp/threeway/internal/platform/cache"
	"github.com/odyssey-erp/threeway/internal/platform/db"
	"github.com/odyssey-erp/threeway/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	primary, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	pools := db.Pools{Primary: primary}
	if cfg.PGReadDSN != "" {
		if replica, err := db.New(ctx, cfg.PGReadDSN); err != nil {
			logger.Warn("read replica unavailable, reading from primary", slog.Any("error", err))
		} else {
			pools.Replica = replica
		}
	}
	defer pools.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, pools, redisClient, logger, metrics.Registerer())
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	bulkJob := jobs.NewBulkResolveJob(services.ThreeWay, logger, metrics.Jobs())
	staleJob := jobs.NewStaleScanJob(services.ThreeWay, cfg.StaleAfter, logger, metrics.Jobs())

	staleTask, err := jobs.NewStaleScanTask(cfg.StaleAfter)
	if err != nil {
		logger.Error("build stale scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBulkResolve, Handler: bulkJob.Handle},
			{Type: jobs.TaskStaleExceptionScan, Handler: staleJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StaleScanCron, Task: staleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: cfg.AppReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer metricsServer.Close()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
