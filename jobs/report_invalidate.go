package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/nivi333/lavoro-ai-ferri-sub007/internal/jobs"
)

// InvalidateJob evicts a tenant's cached reports.
type InvalidateJob struct {
	Engine  ReportEngine
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskReportsInvalidate tasks. Malformed payloads are not retried.
func (j *InvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("reports invalidate: handler not configured")
	}
	var payload InvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tenantID := strings.TrimSpace(payload.TenantID)
	if tenantID == "" {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportsInvalidate)
	err := j.Engine.Invalidate(ctx, tenantID)
	if err != nil {
		jobLogger(j.Logger, TaskReportsInvalidate).Error("invalidate reports",
			slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
	return tracker.End(err)
}
