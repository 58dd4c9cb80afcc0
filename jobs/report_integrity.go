package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/nivi333/lavoro-ai-ferri-sub007/internal/jobs"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

// IntegrityJob runs the month's trial balance and closing balance sheet for
// every active tenant and records the diagnostics they carry.
type IntegrityJob struct {
	Engine  ReportEngine
	Tenants TenantLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(engine ReportEngine, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Engine: engine, Tenants: tenants, Logger: logger, Metrics: metrics, clock: utcNow}
}

// Handle processes TaskReportsIntegrity tasks. A failing tenant does not stop
// the others; failures are joined into the returned error.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil || j.Tenants == nil {
		return errors.New("reports integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	window, err := j.period(payload.Period)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	metrics := j.metrics()
	tracker := metrics.Track(TaskReportsIntegrity)
	logger := jobLogger(j.Logger, TaskReportsIntegrity).With(slog.String("period", window.String()))

	tenants, err := j.Tenants.ActiveTenants(ctx)
	if err != nil {
		logger.Error("load tenants", slog.Any("error", err))
		return tracker.End(err)
	}

	var errs []error
	findings := 0
	for _, tenant := range tenants {
		n, err := j.checkTenant(ctx, tenant.ID, window, logger)
		metrics.TenantProcessed(TaskReportsIntegrity, err == nil)
		if err != nil {
			logger.Error("check tenant", slog.String("tenant_id", tenant.ID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
			continue
		}
		findings += n
	}
	logger.Info("completed integrity check", slog.Int("tenants", len(tenants)), slog.Int("findings", findings))
	return tracker.End(errors.Join(errs...))
}

func (j *IntegrityJob) checkTenant(ctx context.Context, tenantID string, window reporting.Window, logger *slog.Logger) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, tenantTimeout)
	defer cancel()

	reqs := []reporting.Request{
		{TenantID: tenantID, Kind: reporting.KindTrialBalance, Window: window},
		{TenantID: tenantID, Kind: reporting.KindBalanceSheet, AsOf: window.To},
	}
	findings := 0
	for _, req := range reqs {
		res, err := j.Engine.Generate(ctx, req)
		if err != nil {
			return findings, fmt.Errorf("%s: %w", req.Kind, err)
		}
		for _, d := range res.Diagnostics {
			j.metrics().AddFindings(string(res.Kind), string(d.Code), 1)
			logger.Warn("report diagnostic",
				slog.String("tenant_id", tenantID),
				slog.String("kind", string(res.Kind)),
				slog.String("code", string(d.Code)),
				slog.String("ref", d.Ref),
				slog.String("message", d.Message))
			findings++
		}
	}
	return findings, nil
}

func (j *IntegrityJob) period(value string) (reporting.Window, error) {
	if value == "" {
		now := j.now()
		return monthWindow(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)), nil
	}
	month, err := time.Parse("2006-01", value)
	if err != nil {
		return reporting.Window{}, fmt.Errorf("reports integrity: invalid period %q", value)
	}
	return monthWindow(month), nil
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return utcNow()
}
