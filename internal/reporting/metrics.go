package reporting

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsMu          sync.Mutex
	metricsInitialized bool
	metricsError       error

	cacheHitCounter    *prometheus.CounterVec
	cacheMissCounter   *prometheus.CounterVec
	coalescedCounter   *prometheus.CounterVec
	diagnosticCounter  *prometheus.CounterVec
	failureCounter     *prometheus.CounterVec
	buildDurationHisto *prometheus.HistogramVec
)

// SetupMetrics registers the engine metrics once. Later calls return the
// outcome of the first registration.
func SetupMetrics(reg prometheus.Registerer) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsInitialized {
		return metricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferri_report_cache_hits_total",
		Help: "Number of report cache hits.",
	}, []string{"kind"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferri_report_cache_miss_total",
		Help: "Number of report cache misses.",
	}, []string{"kind"})
	coalesced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferri_report_coalesced_total",
		Help: "Number of report requests served by another in-flight computation.",
	}, []string{"kind"})
	diagnostics := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferri_report_diagnostics_total",
		Help: "Number of invariant diagnostics attached to generated reports.",
	}, []string{"kind", "code"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ferri_report_failures_total",
		Help: "Number of report generations that failed.",
	}, []string{"kind", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ferri_report_build_duration_seconds",
		Help:    "Duration required to build a report.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	collectors := []struct {
		collector prometheus.Collector
		assign    func(prometheus.Collector) bool
	}{
		{hits, func(c prometheus.Collector) bool { return assignCounter(&cacheHitCounter, c) }},
		{misses, func(c prometheus.Collector) bool { return assignCounter(&cacheMissCounter, c) }},
		{coalesced, func(c prometheus.Collector) bool { return assignCounter(&coalescedCounter, c) }},
		{diagnostics, func(c prometheus.Collector) bool { return assignCounter(&diagnosticCounter, c) }},
		{failures, func(c prometheus.Collector) bool { return assignCounter(&failureCounter, c) }},
		{duration, func(c prometheus.Collector) bool {
			h, ok := c.(*prometheus.HistogramVec)
			if ok {
				buildDurationHisto = h
			}
			return ok
		}},
	}
	for _, item := range collectors {
		err := reg.Register(item.collector)
		if err == nil {
			item.assign(item.collector)
			continue
		}
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if !item.assign(already.ExistingCollector) {
				metricsError = fmt.Errorf("reporting metrics: unexpected collector type %T", already.ExistingCollector)
			}
			continue
		}
		metricsError = err
		cacheHitCounter, cacheMissCounter, coalescedCounter = nil, nil, nil
		diagnosticCounter, failureCounter, buildDurationHisto = nil, nil, nil
		metricsInitialized = true
		return metricsError
	}

	metricsInitialized = true
	return metricsError
}

func assignCounter(dst **prometheus.CounterVec, c prometheus.Collector) bool {
	cv, ok := c.(*prometheus.CounterVec)
	if ok {
		*dst = cv
	}
	return ok
}

func recordCacheHit(kind Kind) {
	if cacheHitCounter == nil {
		return
	}
	cacheHitCounter.WithLabelValues(string(kind)).Inc()
}

func recordCacheMiss(kind Kind) {
	if cacheMissCounter == nil {
		return
	}
	cacheMissCounter.WithLabelValues(string(kind)).Inc()
}

func recordCoalesced(kind Kind) {
	if coalescedCounter == nil {
		return
	}
	coalescedCounter.WithLabelValues(string(kind)).Inc()
}

func recordDiagnostics(kind Kind, diags []Diagnostic) {
	if diagnosticCounter == nil {
		return
	}
	for _, d := range diags {
		diagnosticCounter.WithLabelValues(string(kind), string(d.Code)).Inc()
	}
}

func recordFailure(kind Kind, err error) {
	if failureCounter == nil {
		return
	}
	failureCounter.WithLabelValues(string(kind), failureReason(err)).Inc()
}

func observeBuildDuration(kind Kind, d time.Duration) {
	if buildDurationHisto == nil {
		return
	}
	buildDurationHisto.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrScopeViolation):
		return "scope_violation"
	case errors.Is(err, ErrEmptyWindow):
		return "empty_window"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, ErrInvalidOptions):
		return "invalid_options"
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case isContextErr(err):
		return "cancelled"
	}
	return "internal"
}
