package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting/pgstore"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting/rediscache"
)

// ReportDeps are the live resources the report engine is built on.
type ReportDeps struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Reports bundles the engine with the store it reads, which jobs also use for
// tenant discovery.
type Reports struct {
	Engine *reporting.Engine
	Store  *pgstore.Store
}

// NewReports wires the store, cache backend and metrics into an engine. With
// the memory backend and a Redis client, local caches follow invalidations
// published by other replicas until ctx ends.
func NewReports(ctx context.Context, cfg *Config, deps ReportDeps) (*Reports, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := reporting.SetupMetrics(deps.Registerer); err != nil {
		return nil, fmt.Errorf("report metrics: %w", err)
	}
	fraction, err := cfg.CriticalFraction()
	if err != nil {
		return nil, err
	}

	store := pgstore.New(deps.Pool, cfg.ReportStatementTimeout)
	cache, locker, err := reportCache(ctx, cfg, deps.Redis, logger)
	if err != nil {
		return nil, err
	}

	engine, err := reporting.NewEngine(reporting.EngineConfig{
		Store:            store,
		Cache:            cache,
		Locker:           locker,
		Logger:           logger,
		ReadTimeout:      cfg.ReportReadTimeout,
		CriticalFraction: fraction,
		ShardSize:        cfg.ReportShardSize,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("report engine ready", slog.String("cache_backend", cfg.ReportCacheBackend))
	return &Reports{Engine: engine, Store: store}, nil
}

func reportCache(ctx context.Context, cfg *Config, client *redis.Client, logger *slog.Logger) (reporting.Cache, reporting.Locker, error) {
	switch cfg.ReportCacheBackend {
	case CacheBackendNone:
		return nil, nil, nil
	case CacheBackendRedis:
		if client == nil {
			return nil, nil, fmt.Errorf("REPORT_CACHE_BACKEND=redis requires a redis client")
		}
		c, err := rediscache.New(client, rediscache.Options{
			TTL:     cfg.ReportCacheTTL,
			LockTTL: cfg.ReportLockTTL,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		local := reporting.NewMemoryCache(cfg.ReportCacheTTL)
		if client == nil {
			return local, nil, nil
		}
		if err := rediscache.ListenForInvalidation(ctx, client, local, logger); err != nil {
			return nil, nil, err
		}
		return rediscache.NewBroadcast(local, client), nil, nil
	}
}
