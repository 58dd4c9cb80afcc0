package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/app"
	jobmetrics "github.com/nivi333/lavoro-ai-ferri-sub007/internal/jobs"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/cache"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/db"
	"github.com/nivi333/lavoro-ai-ferri-sub007/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reports, err := app.NewReports(ctx, cfg, app.ReportDeps{Pool: pool, Redis: redisClient, Logger: logger})
	if err != nil {
		return err
	}
	kinds, err := cfg.Kinds()
	if err != nil {
		return err
	}

	metrics := jobmetrics.NewMetrics(nil)
	invalidateJob := &jobs.InvalidateJob{Engine: reports.Engine, Logger: logger, Metrics: metrics}
	integrityJob := jobs.NewIntegrityJob(reports.Engine, reports.Store, logger, metrics)
	warmupJob := jobs.NewWarmupJob(reports.Engine, reports.Store, kinds, logger, metrics)

	integrityTask, err := jobs.NewIntegrityTask("")
	if err != nil {
		return err
	}
	warmupTask, err := jobs.NewWarmupTask(nil)
	if err != nil {
		return err
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportsInvalidate, Handler: invalidateJob.Handle},
			{Type: jobs.TaskReportsIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
		},
		Cron: cronRegistrations(cfg, integrityTask, warmupTask, logger),
	})
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}

// cronRegistrations schedules the integrity check always and the warmup only
// when its results land in a cache the API replicas read.
func cronRegistrations(cfg *app.Config, integrityTask, warmupTask *asynq.Task, logger *slog.Logger) []jobs.CronRegistration {
	cron := []jobs.CronRegistration{
		{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}
	if !cfg.SharedCache() {
		logger.Warn("warmup cron disabled: report cache is not shared with API replicas",
			slog.String("backend", cfg.ReportCacheBackend))
		return cron
	}
	return append(cron, jobs.CronRegistration{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}})
}
