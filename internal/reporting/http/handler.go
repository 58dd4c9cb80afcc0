// Package reportinghttp exposes the report engine as a JSON API.
package reportinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/httpx"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

const (
	// TenantHeader carries the company ID set by the upstream auth gateway.
	TenantHeader = "X-Company-ID"

	queryDateLayout       = "2006-01-02"
	defaultRequestTimeout = 15 * time.Second
)

var errMissingTenant = errors.New("missing " + TenantHeader + " header")

// errorMappings translates engine sentinels into HTTP statuses.
var errorMappings = []httpx.ErrorMapping{
	{Target: errMissingTenant, Status: http.StatusBadRequest, Title: "Missing Tenant"},
	{Target: reporting.ErrScopeViolation, Status: http.StatusForbidden, Title: "Scope Violation"},
	{Target: reporting.ErrEmptyWindow, Status: http.StatusBadRequest, Title: "Empty Window"},
	{Target: reporting.ErrInvalidOptions, Status: http.StatusBadRequest, Title: "Invalid Options"},
	{Target: reporting.ErrUnknownKind, Status: http.StatusNotFound, Title: "Unknown Report"},
	{Target: reporting.ErrUnknownAccount, Status: http.StatusUnprocessableEntity, Title: "Unknown Account"},
	{Target: reporting.ErrTimeout, Status: http.StatusGatewayTimeout, Title: "Report Timeout"},
}

// Engine is the report contract used by the handler.
type Engine interface {
	Generate(ctx context.Context, req reporting.Request) (*reporting.Result, error)
	Invalidate(ctx context.Context, tenantID string) error
}

// Handler serves report requests.
type Handler struct {
	logger   *slog.Logger
	engine   Engine
	validate *validator.Validate
	timeout  time.Duration
}

// NewHandler constructs the handler. A non-positive timeout uses the default.
func NewHandler(logger *slog.Logger, engine Engine, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  timeout,
	}
}

type reportQuery struct {
	From             string `validate:"omitempty,datetime=2006-01-02"`
	To               string `validate:"omitempty,datetime=2006-01-02"`
	AsOf             string `validate:"omitempty,datetime=2006-01-02"`
	CriticalFraction string `validate:"omitempty,numeric"`
	TopN             string `validate:"omitempty,number"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	req, err := h.parseRequest(r, tenantID)
	if err != nil {
		httpx.RespondError(w, err, errorMappings...)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.engine.Generate(ctx, req)
	if err != nil {
		h.respondEngineError(w, req, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	if err := h.engine.Invalidate(r.Context(), tenantID); err != nil {
		h.logger.Error("invalidate reports", slog.String("tenant_id", tenantID), slog.Any("error", err))
		httpx.RespondError(w, err, errorMappings...)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondEngineError(w http.ResponseWriter, req reporting.Request, err error) {
	status, _ := httpx.StatusFor(err, errorMappings...)
	if status >= http.StatusInternalServerError {
		h.logger.Error("generate report",
			slog.String("tenant_id", req.TenantID),
			slog.String("kind", string(req.Kind)),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) parseRequest(r *http.Request, tenantID string) (reporting.Request, error) {
	values := r.URL.Query()
	q := reportQuery{
		From:             strings.TrimSpace(values.Get("from")),
		To:               strings.TrimSpace(values.Get("to")),
		AsOf:             strings.TrimSpace(values.Get("as_of")),
		CriticalFraction: strings.TrimSpace(values.Get("critical_fraction")),
		TopN:             strings.TrimSpace(values.Get("top_n")),
	}
	if err := h.validate.Struct(q); err != nil {
		return reporting.Request{}, fmt.Errorf("%w: %s", httpx.ErrValidation, describe(err))
	}

	req := reporting.Request{
		TenantID: tenantID,
		Kind:     reporting.Kind(chi.URLParam(r, "kind")),
	}
	req.Window.From = parseDate(q.From)
	req.Window.To = parseDate(q.To)
	req.AsOf = parseDate(q.AsOf)
	if q.CriticalFraction != "" {
		cf, err := decimal.NewFromString(q.CriticalFraction)
		if err != nil {
			return reporting.Request{}, fmt.Errorf("%w: critical_fraction: %v", reporting.ErrInvalidOptions, err)
		}
		req.Options.CriticalFraction = &cf
	}
	if q.TopN != "" {
		n, err := strconv.Atoi(q.TopN)
		if err != nil {
			return reporting.Request{}, fmt.Errorf("%w: top_n: %v", reporting.ErrInvalidOptions, err)
		}
		req.Options.TopN = n
	}
	return req, nil
}

// parseDate expects input already validated against queryDateLayout.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(queryDateLayout, s)
	return t
}

var queryParams = map[string]string{
	"From":             "from",
	"To":               "to",
	"AsOf":             "as_of",
	"CriticalFraction": "critical_fraction",
	"TopN":             "top_n",
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is invalid (%s)", queryParams[fe.Field()], fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
