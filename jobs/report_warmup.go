package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/nivi333/lavoro-ai-ferri-sub007/internal/jobs"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

// WarmupJob precomputes reports for the current month so the first request of
// the day is served from cache.
type WarmupJob struct {
	Engine  ReportEngine
	Tenants TenantLister
	Kinds   []reporting.Kind
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler. kinds is the
// default set used when a task does not name any.
func NewWarmupJob(engine ReportEngine, tenants TenantLister, kinds []reporting.Kind, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{Engine: engine, Tenants: tenants, Kinds: kinds, Logger: logger, Metrics: metrics, clock: utcNow}
}

// Handle processes TaskReportsWarmup tasks. Tenants that fail are logged and
// skipped; warmup is best-effort.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil || j.Tenants == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload WarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	kinds := payload.Kinds
	if len(kinds) == 0 {
		kinds = j.Kinds
	}
	for _, k := range kinds {
		if _, err := reporting.ParseKind(string(k)); err != nil {
			return errors.Join(err, asynq.SkipRetry)
		}
	}

	metrics := j.metrics()
	tracker := metrics.Track(TaskReportsWarmup)
	logger := jobLogger(j.Logger, TaskReportsWarmup)

	tenants, err := j.Tenants.ActiveTenants(ctx)
	if err != nil {
		logger.Error("load tenants", slog.Any("error", err))
		return tracker.End(err)
	}
	if len(tenants) == 0 || len(kinds) == 0 {
		logger.Info("nothing to warm")
		return tracker.End(nil)
	}

	start := j.now()
	today := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	window := reporting.Window{From: monthWindow(today).From, To: today}
	warmed := 0
	for _, tenant := range tenants {
		err := j.warmTenant(ctx, tenant.ID, kinds, window)
		metrics.TenantProcessed(TaskReportsWarmup, err == nil)
		if err != nil {
			logger.Warn("warm tenant", slog.String("tenant_id", tenant.ID), slog.Any("error", err))
			continue
		}
		warmed++
	}
	logger.Info("completed warmup", slog.Int("tenants", warmed), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *WarmupJob) warmTenant(ctx context.Context, tenantID string, kinds []reporting.Kind, window reporting.Window) error {
	ctx, cancel := context.WithTimeout(ctx, tenantTimeout)
	defer cancel()
	reqs := make([]reporting.Request, 0, len(kinds))
	for _, k := range kinds {
		req := reporting.Request{TenantID: tenantID, Kind: k, Window: window}
		if k.AsOf() {
			req.AsOf = window.To
		}
		reqs = append(reqs, req)
	}
	if batch, ok := j.Engine.(interface {
		GenerateBatch(context.Context, []reporting.Request) ([]*reporting.Result, error)
	}); ok {
		_, err := batch.GenerateBatch(ctx, reqs)
		return err
	}
	for _, req := range reqs {
		if _, err := j.Engine.Generate(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return utcNow()
}
