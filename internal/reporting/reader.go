package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultReadTimeout = 10 * time.Second

// sqlstate raised when statement_timeout cancels a query.
const queryCanceledState = "57014"

var tracer = otel.Tracer("github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting")

// Store is the read-only persistence collaborator. Implementations must
// restrict every query to the tenant and, where a window is given, to the
// closed date range. An unknown tenant is reported as ErrScopeViolation.
type Store interface {
	Tenant(ctx context.Context, tenantID string) (Tenant, error)
	LedgerEntries(ctx context.Context, tenantID string, window Window) ([]LedgerEntry, error)
	StockMovements(ctx context.Context, tenantID string, window Window) ([]StockMovement, error)
	MachineLogs(ctx context.Context, tenantID string, window Window) ([]MachineLog, error)
	OrderLines(ctx context.Context, tenantID string, window Window) ([]OrderLine, error)
	Products(ctx context.Context, tenantID string) ([]Product, error)
}

// ScopedReader is the engine's only data boundary. It bounds every store call
// with a timeout and re-applies the tenant, active and window filters to
// whatever the store returns.
type ScopedReader struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewScopedReader wraps store. A non-positive timeout uses the default.
func NewScopedReader(store Store, timeout time.Duration, logger *slog.Logger) *ScopedReader {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopedReader{store: store, timeout: timeout, logger: logger}
}

// Tenant resolves an active tenant or fails with ErrScopeViolation.
func (r *ScopedReader) Tenant(ctx context.Context, tenantID string) (Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Tenant{}, fmt.Errorf("%w: tenant id required", ErrScopeViolation)
	}
	var tenant Tenant
	err := r.call(ctx, "tenant", tenantID, func(cctx context.Context) error {
		var err error
		tenant, err = r.store.Tenant(cctx, tenantID)
		return err
	})
	if err != nil {
		return Tenant{}, err
	}
	if tenant.ID != tenantID {
		return Tenant{}, fmt.Errorf("%w: tenant %s not resolvable", ErrScopeViolation, tenantID)
	}
	if !tenant.Active {
		return Tenant{}, fmt.Errorf("%w: tenant %s inactive", ErrScopeViolation, tenantID)
	}
	return tenant, nil
}

// LedgerEntries returns the active entries of tenantID dated inside window.
func (r *ScopedReader) LedgerEntries(ctx context.Context, tenantID string, window Window) ([]LedgerEntry, error) {
	return fetch(ctx, r, "ledger_entries", tenantID, window,
		func(cctx context.Context) ([]LedgerEntry, error) { return r.store.LedgerEntries(cctx, tenantID, window) },
		func(e LedgerEntry) scope { return scope{e.ID, e.TenantID, e.Active, e.EntryDate, true} })
}

// StockMovements returns the active movements of tenantID dated inside window.
func (r *ScopedReader) StockMovements(ctx context.Context, tenantID string, window Window) ([]StockMovement, error) {
	return fetch(ctx, r, "stock_movements", tenantID, window,
		func(cctx context.Context) ([]StockMovement, error) { return r.store.StockMovements(cctx, tenantID, window) },
		func(m StockMovement) scope { return scope{m.ID, m.TenantID, m.Active, m.MovementDate, true} })
}

// MachineLogs returns the active machine logs of tenantID dated inside window.
func (r *ScopedReader) MachineLogs(ctx context.Context, tenantID string, window Window) ([]MachineLog, error) {
	return fetch(ctx, r, "machine_logs", tenantID, window,
		func(cctx context.Context) ([]MachineLog, error) { return r.store.MachineLogs(cctx, tenantID, window) },
		func(l MachineLog) scope { return scope{l.ID, l.TenantID, l.Active, l.LogDate, true} })
}

// OrderLines returns the active order lines of tenantID dated inside window.
func (r *ScopedReader) OrderLines(ctx context.Context, tenantID string, window Window) ([]OrderLine, error) {
	return fetch(ctx, r, "order_lines", tenantID, window,
		func(cctx context.Context) ([]OrderLine, error) { return r.store.OrderLines(cctx, tenantID, window) },
		func(l OrderLine) scope { return scope{l.ID, l.TenantID, l.Active, l.OrderDate, true} })
}

// Products returns the active catalog of tenantID.
func (r *ScopedReader) Products(ctx context.Context, tenantID string) ([]Product, error) {
	return fetch(ctx, r, "products", tenantID, Window{},
		func(cctx context.Context) ([]Product, error) { return r.store.Products(cctx, tenantID) },
		func(p Product) scope { return scope{id: p.ID, tenantID: p.TenantID, active: p.Active} })
}

type scope struct {
	id       string
	tenantID string
	active   bool
	date     time.Time
	dated    bool
}

func fetch[T any](ctx context.Context, r *ScopedReader, kind, tenantID string, window Window, load func(context.Context) ([]T, error), describe func(T) scope) ([]T, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id required", ErrScopeViolation)
	}
	var rows []T
	err := r.call(ctx, kind, tenantID, func(cctx context.Context) error {
		var err error
		rows, err = load(cctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	foreign := 0
	for _, row := range rows {
		s := describe(row)
		if s.tenantID != tenantID {
			foreign++
			continue
		}
		if !s.active {
			continue
		}
		if s.dated && !window.Contains(s.date) {
			continue
		}
		out = append(out, row)
	}
	if foreign > 0 {
		r.logger.Warn("reporting: dropped foreign tenant rows",
			slog.String("kind", kind),
			slog.String("tenant_id", tenantID),
			slog.Int("count", foreign))
	}
	return out, nil
}

// call runs fn under the read timeout inside a span and maps timeouts.
func (r *ScopedReader) call(ctx context.Context, kind, tenantID string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "reporting.read."+kind, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		return nil
	}
	err = r.mapErr(ctx, cctx, kind, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (r *ScopedReader) mapErr(parent, bounded context.Context, kind string, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if isTimeout(err) || errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, kind, r.timeout)
	}
	return fmt.Errorf("reporting: read %s: %w", kind, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == queryCanceledState
}
