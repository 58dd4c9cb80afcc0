// Package pgstore implements the report engine's record store over PostgreSQL.
// Every fetch runs in its own read-only snapshot transaction.
package pgstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/platform/db"
	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

// Store reads tenant-scoped records for the report engine.
type Store struct {
	db               db.TxBeginner
	builder          sq.StatementBuilderType
	statementTimeout time.Duration
}

// New constructs a store. statementTimeout bounds every query server-side;
// zero keeps the database default.
func New(conn db.TxBeginner, statementTimeout time.Duration) *Store {
	return &Store{
		db:               conn,
		builder:          sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		statementTimeout: statementTimeout,
	}
}

var _ reporting.Store = (*Store)(nil)

type tenantRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Currency string `db:"currency"`
	Active   bool   `db:"is_active"`
}

type ledgerRow struct {
	ID          string          `db:"id"`
	TenantID    string          `db:"tenant_id"`
	EntryDate   time.Time       `db:"entry_date"`
	AccountCode string          `db:"account_code"`
	AccountName string          `db:"account_name"`
	Reference   string          `db:"reference"`
	Source      string          `db:"source"`
	Debit       decimal.Decimal `db:"debit"`
	Credit      decimal.Decimal `db:"credit"`
	Active      bool            `db:"is_active"`
}

type movementRow struct {
	ID           string          `db:"id"`
	TenantID     string          `db:"tenant_id"`
	ProductID    string          `db:"product_id"`
	Location     string          `db:"location"`
	Quantity     decimal.Decimal `db:"quantity"`
	MovementDate time.Time       `db:"movement_date"`
	Active       bool            `db:"is_active"`
}

type machineLogRow struct {
	ID            string          `db:"id"`
	TenantID      string          `db:"tenant_id"`
	MachineID     string          `db:"machine_id"`
	MachineName   string          `db:"machine_name"`
	RuntimeHours  decimal.Decimal `db:"runtime_hours"`
	DowntimeHours decimal.Decimal `db:"downtime_hours"`
	LogDate       time.Time       `db:"log_date"`
	Active        bool            `db:"is_active"`
}

type orderLineRow struct {
	ID          string          `db:"id"`
	TenantID    string          `db:"tenant_id"`
	OrderID     string          `db:"order_id"`
	OrderDate   time.Time       `db:"order_date"`
	Region      string          `db:"region"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    decimal.Decimal `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	UnitCost    decimal.Decimal `db:"unit_cost"`
	Active      bool            `db:"is_active"`
}

type productRow struct {
	ID           string          `db:"id"`
	TenantID     string          `db:"tenant_id"`
	Name         string          `db:"name"`
	SKU          string          `db:"sku"`
	UnitPrice    decimal.Decimal `db:"unit_price"`
	ReorderLevel decimal.Decimal `db:"reorder_level"`
	Active       bool            `db:"is_active"`
}

// Tenant resolves a company. Malformed or unknown IDs are scope violations.
func (s *Store) Tenant(ctx context.Context, tenantID string) (reporting.Tenant, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return reporting.Tenant{}, fmt.Errorf("%w: malformed tenant id", reporting.ErrScopeViolation)
	}
	query, args, err := s.tenantQuery(tenantID)
	if err != nil {
		return reporting.Tenant{}, err
	}
	var row tenantRow
	err = s.snapshot(ctx, func(tx pgx.Tx) error {
		return pgxscan.Get(ctx, tx, &row, query, args...)
	})
	if pgxscan.NotFound(err) {
		return reporting.Tenant{}, fmt.Errorf("%w: tenant %s not found", reporting.ErrScopeViolation, tenantID)
	}
	if err != nil {
		return reporting.Tenant{}, fmt.Errorf("pgstore: tenant: %w", err)
	}
	return reporting.Tenant{ID: row.ID, Name: row.Name, Currency: row.Currency, Active: row.Active}, nil
}

// ActiveTenants lists every active company, used by background jobs.
func (s *Store) ActiveTenants(ctx context.Context) ([]reporting.Tenant, error) {
	query, args, err := s.builder.
		Select("id::text AS id", "name", "currency", "is_active").
		From("companies").
		Where(sq.Eq{"is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgstore: build active tenants: %w", err)
	}
	var rows []tenantRow
	if err := s.snapshot(ctx, func(tx pgx.Tx) error {
		return pgxscan.Select(ctx, tx, &rows, query, args...)
	}); err != nil {
		return nil, fmt.Errorf("pgstore: active tenants: %w", err)
	}
	out := make([]reporting.Tenant, 0, len(rows))
	for _, r := range rows {
		out = append(out, reporting.Tenant{ID: r.ID, Name: r.Name, Currency: r.Currency, Active: r.Active})
	}
	return out, nil
}

// LedgerEntries implements reporting.Store.
func (s *Store) LedgerEntries(ctx context.Context, tenantID string, window reporting.Window) ([]reporting.LedgerEntry, error) {
	query, args, err := s.ledgerQuery(tenantID, window)
	if err != nil {
		return nil, err
	}
	rows, err := selectRows[ledgerRow](ctx, s, query, args)
	if err != nil {
		return nil, fmt.Errorf("pgstore: ledger entries: %w", err)
	}
	out := make([]reporting.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, reporting.LedgerEntry{
			ID:          r.ID,
			TenantID:    r.TenantID,
			EntryDate:   r.EntryDate,
			AccountCode: r.AccountCode,
			AccountName: r.AccountName,
			Reference:   r.Reference,
			Source:      reporting.EntrySource(r.Source),
			Debit:       r.Debit,
			Credit:      r.Credit,
			Active:      r.Active,
		})
	}
	return out, nil
}

// StockMovements implements reporting.Store.
func (s *Store) StockMovements(ctx context.Context, tenantID string, window reporting.Window) ([]reporting.StockMovement, error) {
	query, args, err := s.movementQuery(tenantID, window)
	if err != nil {
		return nil, err
	}
	rows, err := selectRows[movementRow](ctx, s, query, args)
	if err != nil {
		return nil, fmt.Errorf("pgstore: stock movements: %w", err)
	}
	out := make([]reporting.StockMovement, 0, len(rows))
	for _, r := range rows {
		out = append(out, reporting.StockMovement(r))
	}
	return out, nil
}

// MachineLogs implements reporting.Store.
func (s *Store) MachineLogs(ctx context.Context, tenantID string, window reporting.Window) ([]reporting.MachineLog, error) {
	query, args, err := s.machineLogQuery(tenantID, window)
	if err != nil {
		return nil, err
	}
	rows, err := selectRows[machineLogRow](ctx, s, query, args)
	if err != nil {
		return nil, fmt.Errorf("pgstore: machine logs: %w", err)
	}
	out := make([]reporting.MachineLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, reporting.MachineLog(r))
	}
	return out, nil
}

// OrderLines implements reporting.Store.
func (s *Store) OrderLines(ctx context.Context, tenantID string, window reporting.Window) ([]reporting.OrderLine, error) {
	query, args, err := s.orderLineQuery(tenantID, window)
	if err != nil {
		return nil, err
	}
	rows, err := selectRows[orderLineRow](ctx, s, query, args)
	if err != nil {
		return nil, fmt.Errorf("pgstore: order lines: %w", err)
	}
	out := make([]reporting.OrderLine, 0, len(rows))
	for _, r := range rows {
		out = append(out, reporting.OrderLine(r))
	}
	return out, nil
}

// Products implements reporting.Store.
func (s *Store) Products(ctx context.Context, tenantID string) ([]reporting.Product, error) {
	query, args, err := s.productQuery(tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := selectRows[productRow](ctx, s, query, args)
	if err != nil {
		return nil, fmt.Errorf("pgstore: products: %w", err)
	}
	out := make([]reporting.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, reporting.Product(r))
	}
	return out, nil
}

func selectRows[T any](ctx context.Context, s *Store, query string, args []any) ([]T, error) {
	var rows []T
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		return pgxscan.Select(ctx, tx, &rows, query, args...)
	})
	return rows, err
}

func (s *Store) snapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithSnapshot(ctx, s.db, s.statementTimeout, fn)
}
