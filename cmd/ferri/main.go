package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nivi333/lavoro-ai-ferri-sub007/cmd/ferri/cli"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/app"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/observability"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/cache"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/db"
	reportinghttp "github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting/http"
	"github.com/nivi333/lavoro-ai-ferri-sub007/jobs"
)

const usage = `usage:
  ferri                     serve the report API
  ferri report [flags]      generate one report and print it
  ferri jobs trigger NAME [ARG]
  ferri jobs stats`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "serve" {
		if err := serve(ctx, stop, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	switch args[0] {
	case "report":
		os.Exit(runReport(ctx, cfg, logger, args[1:]))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args[1:]))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
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

	metrics := observability.NewMetrics()
	reports, err := app.NewReports(ctx, cfg, app.ReportDeps{
		Pool:       pool,
		Redis:      redisClient,
		Registerer: metrics.Registerer(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ReportHandler: reportinghttp.NewHandler(logger, reports.Engine, cfg.AppRequestTimeout),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
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

func runReport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	var opts cli.ReportOptions
	fs.StringVar(&opts.TenantID, "tenant", "", "company id")
	fs.StringVar(&opts.Kind, "kind", "", "report kind")
	fs.StringVar(&opts.From, "from", "", "window start (YYYY-MM-DD)")
	fs.StringVar(&opts.To, "to", "", "window end (YYYY-MM-DD)")
	fs.StringVar(&opts.AsOf, "as-of", "", "snapshot date for balance_sheet and stock_valuation")
	fs.StringVar(&opts.CriticalFraction, "critical-fraction", "", "low stock critical fraction override")
	fs.IntVar(&opts.TopN, "top", 0, "limit product performance rows")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	pool, err := db.New(ctx, db.Config{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return cli.ExitError
	}
	defer pool.Close()

	// One-shot runs never benefit from a cache.
	cfg.ReportCacheBackend = app.CacheBackendNone
	reports, err := app.NewReports(ctx, cfg, app.ReportDeps{Pool: pool, Logger: logger})
	if err != nil {
		logger.Error("init reports", slog.Any("error", err))
		return cli.ExitError
	}
	return cli.NewReportCLI(reports.Engine).ReportCommand(ctx, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(redisOpts(cfg))
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	return 0
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
