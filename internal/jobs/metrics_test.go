package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if err := m.Track("reports:warmup").End(nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("reports:warmup").End(boom); !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}

	if got := testutil.ToFloat64(m.runs.WithLabelValues("reports:warmup", "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("reports:warmup")); got != 1 {
		t.Fatalf("expected one failure, got %v", got)
	}
}

func TestFindingsAndTenants(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddFindings("trial_balance", "UNBALANCED", 2)
	m.AddFindings("trial_balance", "UNBALANCED", 0)
	m.TenantProcessed("reports:integrity", true)
	m.TenantProcessed("reports:integrity", false)

	if got := testutil.ToFloat64(m.findings.WithLabelValues("trial_balance", "UNBALANCED")); got != 2 {
		t.Fatalf("expected two findings, got %v", got)
	}
	if got := testutil.ToFloat64(m.tenants.WithLabelValues("reports:integrity", "failure")); got != 1 {
		t.Fatalf("expected one failed tenant, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.AddFindings("trial_balance", "UNBALANCED", 1)
	nilMetrics.TenantProcessed("reports:integrity", true)
	if err := nilMetrics.Track("x").End(nil); err != nil {
		t.Fatalf("nil metrics should be inert, got %v", err)
	}
}
