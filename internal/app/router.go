package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/observability"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/httpx"
	reportinghttp "github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting/http"
	"github.com/nivi333/lavoro-ai-ferri-sub007/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	ReportHandler *reportinghttp.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.ReportHandler != nil {
		params.ReportHandler.MountRoutes(r, rateLimit(params.Config))
	}
	if params.JobHandler != nil {
		params.JobHandler.MountRoutes(r)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func rateLimit(cfg *Config) reportinghttp.RateLimit {
	if cfg == nil {
		return reportinghttp.RateLimit{}
	}
	return reportinghttp.RateLimit{Requests: cfg.ReportRateLimit, Window: cfg.ReportRateWindow}
}
