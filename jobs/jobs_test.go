package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/nivi333/lavoro-ai-ferri-sub007/internal/jobs"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
	_ "github.com/nivi333/lavoro-ai-ferri-sub007/testing"
)

type stubEngine struct {
	mu          sync.Mutex
	requests    []reporting.Request
	invalidated []string
	failTenant  string
	diagnostics map[string][]reporting.Diagnostic
}

func (s *stubEngine) Generate(_ context.Context, req reporting.Request) (*reporting.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if req.TenantID == s.failTenant {
		return nil, reporting.ErrTimeout
	}
	res := &reporting.Result{Kind: req.Kind, TenantID: req.TenantID, Diagnostics: []reporting.Diagnostic{}}
	if req.Kind == reporting.KindTrialBalance {
		res.Diagnostics = append(res.Diagnostics, s.diagnostics[req.TenantID]...)
	}
	return res, nil
}

func (s *stubEngine) Invalidate(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, tenantID)
	return nil
}

type stubTenants struct {
	tenants []reporting.Tenant
	err     error
}

func (s stubTenants) ActiveTenants(context.Context) ([]reporting.Tenant, error) {
	return s.tenants, s.err
}

func fixedClock() time.Time {
	return time.Date(2025, 2, 10, 3, 0, 0, 0, time.UTC)
}

func TestInvalidateJob(t *testing.T) {
	engine := &stubEngine{}
	job := &InvalidateJob{Engine: engine, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewInvalidateTask("tenant-a")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"tenant-a"}, engine.invalidated)

	err = job.Handle(context.Background(), asynq.NewTask(TaskReportsInvalidate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	blank, err := NewInvalidateTask("  ")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), blank), asynq.SkipRetry)
	require.Len(t, engine.invalidated, 1)
}

func TestIntegrityJobChecksPreviousMonth(t *testing.T) {
	engine := &stubEngine{
		failTenant: "tenant-c",
		diagnostics: map[string][]reporting.Diagnostic{
			"tenant-b": {{Code: reporting.DiagUnbalanced, Message: "debits exceed credits by 0.01"}},
		},
	}
	tenants := stubTenants{tenants: []reporting.Tenant{{ID: "tenant-a"}, {ID: "tenant-b"}, {ID: "tenant-c"}}}
	job := NewIntegrityJob(engine, tenants, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = fixedClock

	task, err := NewIntegrityTask("")
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, reporting.ErrTimeout)
	require.Contains(t, err.Error(), "tenant-c")

	jan := reporting.Window{
		From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	var sawTrial, sawSheet bool
	for _, req := range engine.requests {
		switch req.Kind {
		case reporting.KindTrialBalance:
			sawTrial = true
			require.Equal(t, jan, req.Window)
		case reporting.KindBalanceSheet:
			sawSheet = true
			require.Equal(t, jan.To, req.AsOf)
		}
	}
	require.True(t, sawTrial)
	require.True(t, sawSheet)
}

func TestIntegrityJobPinnedPeriod(t *testing.T) {
	engine := &stubEngine{}
	job := NewIntegrityJob(engine, stubTenants{tenants: []reporting.Tenant{{ID: "tenant-a"}}}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = fixedClock

	task, err := NewIntegrityTask("2024-02")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), engine.requests[0].Window.To)

	bad, err := NewIntegrityTask("February")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestIntegrityJobTenantListFailure(t *testing.T) {
	job := NewIntegrityJob(&stubEngine{}, stubTenants{err: errors.New("db down")}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewIntegrityTask("")
	require.NoError(t, err)
	require.EqualError(t, job.Handle(context.Background(), task), "db down")
}

func TestWarmupJobUsesCurrentMonth(t *testing.T) {
	engine := &stubEngine{failTenant: "tenant-b"}
	tenants := stubTenants{tenants: []reporting.Tenant{{ID: "tenant-a"}, {ID: "tenant-b"}}}
	kinds := []reporting.Kind{reporting.KindSalesByRegion, reporting.KindStockValuation}
	job := NewWarmupJob(engine, tenants, kinds, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = fixedClock

	task, err := NewWarmupTask(nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	var warmedA int
	for _, req := range engine.requests {
		if req.TenantID != "tenant-a" {
			continue
		}
		warmedA++
		require.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), req.Window.From)
		require.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), req.Window.To)
		if req.Kind == reporting.KindStockValuation {
			require.Equal(t, req.Window.To, req.AsOf)
		}
	}
	require.Equal(t, 2, warmedA)
}

func TestWarmupJobRejectsUnknownKind(t *testing.T) {
	job := NewWarmupJob(&stubEngine{}, stubTenants{}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewWarmupTask([]reporting.Kind{"cash_forecast"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, reporting.ErrUnknownKind)
}
