package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/nivi333/lavoro-ai-ferri-sub007/internal/jobs"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReportsInvalidate evicts one tenant's cached reports after a write.
	TaskReportsInvalidate = "reports:invalidate"
	// TaskReportsIntegrity checks last month's ledger balance for every tenant.
	TaskReportsIntegrity = "reports:integrity"
	// TaskReportsWarmup precomputes the current month's reports.
	TaskReportsWarmup = "reports:warmup"

	tenantTimeout = 20 * time.Second
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportEngine is the subset of the report engine used by jobs.
type ReportEngine interface {
	Generate(ctx context.Context, req reporting.Request) (*reporting.Result, error)
	Invalidate(ctx context.Context, tenantID string) error
}

// TenantLister discovers the tenants scheduled jobs iterate.
type TenantLister interface {
	ActiveTenants(ctx context.Context) ([]reporting.Tenant, error)
}

// InvalidatePayload names the tenant whose source data changed.
type InvalidatePayload struct {
	TenantID string `json:"tenant_id"`
}

// IntegrityPayload optionally pins the checked month (YYYY-MM); empty means
// the month before the run.
type IntegrityPayload struct {
	Period string `json:"period,omitempty"`
}

// WarmupPayload lists the report kinds to precompute; empty uses the job default.
type WarmupPayload struct {
	Kinds []reporting.Kind `json:"kinds,omitempty"`
}

// NewInvalidateTask constructs an invalidation task.
func NewInvalidateTask(tenantID string) (*asynq.Task, error) {
	return newTask(TaskReportsInvalidate, InvalidatePayload{TenantID: tenantID})
}

// NewIntegrityTask constructs an integrity check task.
func NewIntegrityTask(period string) (*asynq.Task, error) {
	return newTask(TaskReportsIntegrity, IntegrityPayload{Period: period})
}

// NewWarmupTask constructs a warmup task.
func NewWarmupTask(kinds []reporting.Kind) (*asynq.Task, error) {
	return newTask(TaskReportsWarmup, WarmupPayload{Kinds: kinds})
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// monthWindow returns the first and last day of the month containing t.
func monthWindow(t time.Time) reporting.Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return reporting.Window{From: start, To: start.AddDate(0, 1, -1)}
}
