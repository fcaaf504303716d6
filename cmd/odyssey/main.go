package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/threeway/cmd/odyssey/cli"
	"github.com/odyssey-erp/threeway/internal/app"
	audithttp "github.com/odyssey-erp/threeway/internal/audit/http"
	"github.com/odyssey-erp/threeway/internal/observability"
	"github.com/odyssey-erp/threeway/internal/platform/cache"
	"github.com/odyssey-erp/threeway/internal/platform/db"
	"github.com/odyssey-erp/threeway/internal/procurement"
	threewayhttp "github.com/odyssey-erp/threeway/internal/threeway/http"
	"github.com/odyssey-erp/threeway/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		if err := runCommand(cfg, logger, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg, logger); err != nil {
		logger.Error("serve", slog.Any("error", err))
		os.Exit(1)
	}
}

func runCommand(cfg *app.Config, logger *slog.Logger, args []string) error {
	switch args[0] {
	case "migrate":
		direction := "up"
		if len(args) > 1 {
			direction = args[1]
		}
		return cli.Migrate(cfg.PGDSN, direction, logger)
	case "jobs":
		if len(args) < 3 || args[1] != "trigger" {
			return fmt.Errorf("usage: odyssey jobs trigger <task>")
		}
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer jobsCLI.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		info, err := jobsCLI.Trigger(ctx, args[2], cfg.StaleAfter)
		if err != nil {
			return err
		}
		logger.Info("job enqueued", slog.String("task", info.Type), slog.String("task_id", info.ID))
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := cli.Migrate(cfg.PGDSN, "up", logger); err != nil {
			return err
		}
	}

	primary, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	pools := db.Pools{Primary: primary}
	if cfg.PGReadDSN != "" {
		replica, err := db.New(ctx, cfg.PGReadDSN)
		if err != nil {
			logger.Warn("read replica unavailable, reading from primary", slog.Any("error", err))
		} else {
			pools.Replica = replica
		}
	}
	defer pools.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, locks and settings cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, pools, redisClient, logger, metrics.Registerer())
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer jobClient.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(logger, services.Procurement),
		ThreeWayHandler:    threewayhttp.NewHandler(logger, services.ThreeWay, jobClient),
		AuditHandler:       audithttp.NewHandler(logger, services.Audit),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
