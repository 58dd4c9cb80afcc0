package pgstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

// windowed restricts col to the window. An unbounded window only caps the end.
func windowed(q sq.SelectBuilder, col string, window reporting.Window) sq.SelectBuilder {
	if window.Unbounded() {
		return q.Where(sq.LtOrEq{col: window.To})
	}
	return q.Where(sq.Expr(col+" BETWEEN ? AND ?", window.From, window.To))
}

func build(q sq.SelectBuilder, what string) (string, []any, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("pgstore: build %s query: %w", what, err)
	}
	return query, args, nil
}

func (s *Store) tenantQuery(tenantID string) (string, []any, error) {
	return build(s.builder.
		Select("id::text AS id", "name", "currency", "is_active").
		From("companies").
		Where(sq.Eq{"id": tenantID}), "tenant")
}

func (s *Store) ledgerQuery(tenantID string, window reporting.Window) (string, []any, error) {
	q := s.builder.
		Select(
			"id::text AS id",
			"tenant_id::text AS tenant_id",
			"entry_date",
			"account_code",
			"account_name",
			"reference",
			"source",
			"COALESCE(debit, 0) AS debit",
			"COALESCE(credit, 0) AS credit",
			"is_active",
		).
		From("ledger_entries").
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true})
	q = windowed(q, "entry_date", window).OrderBy("entry_date", "id")
	return build(q, "ledger")
}

func (s *Store) movementQuery(tenantID string, window reporting.Window) (string, []any, error) {
	q := s.builder.
		Select(
			"id::text AS id",
			"tenant_id::text AS tenant_id",
			"product_id::text AS product_id",
			"location",
			"quantity",
			"movement_date",
			"is_active",
		).
		From("stock_movements").
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true})
	q = windowed(q, "movement_date", window).OrderBy("movement_date", "id")
	return build(q, "stock movement")
}

func (s *Store) machineLogQuery(tenantID string, window reporting.Window) (string, []any, error) {
	q := s.builder.
		Select(
			"l.id::text AS id",
			"l.tenant_id::text AS tenant_id",
			"l.machine_id::text AS machine_id",
			"COALESCE(m.name, '') AS machine_name",
			"l.runtime_hours",
			"l.downtime_hours",
			"l.log_date",
			"l.is_active",
		).
		From("machine_logs l").
		LeftJoin("machines m ON m.id = l.machine_id AND m.tenant_id = l.tenant_id").
		Where(sq.Eq{"l.tenant_id": tenantID, "l.is_active": true})
	q = windowed(q, "l.log_date", window).OrderBy("l.log_date", "l.id")
	return build(q, "machine log")
}

func (s *Store) orderLineQuery(tenantID string, window reporting.Window) (string, []any, error) {
	q := s.builder.
		Select(
			"ol.id::text AS id",
			"ol.tenant_id::text AS tenant_id",
			"ol.order_id::text AS order_id",
			"o.order_date",
			"o.region",
			"ol.product_id::text AS product_id",
			"COALESCE(p.name, '') AS product_name",
			"ol.quantity",
			"ol.unit_price",
			"ol.unit_cost",
			"ol.is_active",
		).
		From("sales_order_lines ol").
		Join("sales_orders o ON o.id = ol.order_id AND o.tenant_id = ol.tenant_id").
		LeftJoin("products p ON p.id = ol.product_id AND p.tenant_id = ol.tenant_id").
		Where(sq.Eq{"ol.tenant_id": tenantID, "ol.is_active": true, "o.is_active": true})
	q = windowed(q, "o.order_date", window).OrderBy("o.order_date", "ol.id")
	return build(q, "order line")
}

func (s *Store) productQuery(tenantID string) (string, []any, error) {
	return build(s.builder.
		Select(
			"id::text AS id",
			"tenant_id::text AS tenant_id",
			"name",
			"sku",
			"unit_price",
			"reorder_level",
			"is_active",
		).
		From("products").
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true}).
		OrderBy("id"), "product")
}
