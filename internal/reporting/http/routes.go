package reportinghttp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/httpx"
)

// RateLimit bounds report requests per tenant.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// MountRoutes registers the report endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router, limit RateLimit) {
	if h == nil {
		return
	}
	r.Route("/api/v1/reports", func(rr chi.Router) {
		rr.Use(TenantMiddleware)
		if limit.Requests > 0 && limit.Window > 0 {
			rr.Use(httprate.Limit(limit.Requests, limit.Window,
				httprate.WithKeyFuncs(rateLimitKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "", "")
				}),
			))
		}
		rr.Post("/invalidate", h.handleInvalidate)
		rr.Get("/{kind}", h.handleReport)
	})
}

type tenantKey struct{}

// TenantMiddleware requires the tenant header and stores it in the context.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenantID == "" {
			httpx.RespondError(w, errMissingTenant, errorMappings...)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenantID)))
	})
}

// TenantFromContext returns the tenant set by TenantMiddleware.
func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantKey{}).(string)
	return id
}

func rateLimitKey(r *http.Request) (string, error) {
	if tenantID := TenantFromContext(r.Context()); tenantID != "" {
		return "tenant:" + tenantID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
