// Package reporting implements the report aggregation engine: scoped reads of
// transactional records, account classification, decimal aggregation, the
// per-kind report builders and the post-build invariant checks.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind enumerates the supported report kinds.
type Kind string

const (
	KindTrialBalance         Kind = "trial_balance"
	KindProfitLoss           Kind = "profit_loss"
	KindBalanceSheet         Kind = "balance_sheet"
	KindCashFlow             Kind = "cash_flow"
	KindStockValuation       Kind = "stock_valuation"
	KindLowStock             Kind = "low_stock"
	KindInventoryMovement    Kind = "inventory_movement"
	KindSalesByRegion        Kind = "sales_by_region"
	KindProductPerformance   Kind = "product_performance"
	KindProductionEfficiency Kind = "production_efficiency"
)

var allKinds = []Kind{
	KindTrialBalance,
	KindProfitLoss,
	KindBalanceSheet,
	KindCashFlow,
	KindStockValuation,
	KindLowStock,
	KindInventoryMovement,
	KindSalesByRegion,
	KindProductPerformance,
	KindProductionEfficiency,
}

// Kinds returns every supported report kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind resolves a textual kind, case-insensitively.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// AsOf reports whether the kind is a point-in-time snapshot instead of a range.
func (k Kind) AsOf() bool {
	return k == KindBalanceSheet || k == KindStockValuation
}

// Financial reports whether the kind reads ledger entries through the classifier.
func (k Kind) Financial() bool {
	switch k {
	case KindTrialBalance, KindProfitLoss, KindBalanceSheet, KindCashFlow:
		return true
	}
	return false
}

const dateLayout = "2006-01-02"

// Window is a closed date range. A zero From means the range is unbounded at
// the start, which is how as-of snapshots are expressed.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewWindow normalises both ends to calendar days and rejects from > to.
func NewWindow(from, to time.Time) (Window, error) {
	if from.IsZero() || to.IsZero() {
		return Window{}, fmt.Errorf("%w: from and to are required", ErrEmptyWindow)
	}
	w := Window{From: day(from), To: day(to)}
	if w.From.After(w.To) {
		return Window{}, fmt.Errorf("%w: from %s is after to %s", ErrEmptyWindow, w.From.Format(dateLayout), w.To.Format(dateLayout))
	}
	return w, nil
}

// AsOfWindow returns the unbounded-start window ending at asOf.
func AsOfWindow(asOf time.Time) Window {
	return Window{To: day(asOf)}
}

// Unbounded reports whether the window has no lower bound.
func (w Window) Unbounded() bool {
	return w.From.IsZero()
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := day(t)
	if !w.Unbounded() && d.Before(w.From) {
		return false
	}
	return !d.After(w.To)
}

// Before reports whether t falls on a day before the window start.
func (w Window) Before(t time.Time) bool {
	return !w.Unbounded() && day(t).Before(w.From)
}

// Days returns the number of calendar days covered by a bounded window.
func (w Window) Days() int {
	if w.Unbounded() {
		return 0
	}
	return int(w.To.Sub(w.From).Hours()/24) + 1
}

// Through returns the window [zero, w.To], used to read history up to the end.
func (w Window) Through() Window {
	return Window{To: w.To}
}

func (w Window) String() string {
	if w.Unbounded() {
		return "..." + w.To.Format(dateLayout)
	}
	return w.From.Format(dateLayout) + ".." + w.To.Format(dateLayout)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Tenant is the company every read and report is scoped to.
type Tenant struct {
	ID       string
	Name     string
	Currency string
	Active   bool
}

// EntrySource identifies the document type a ledger entry was posted from.
type EntrySource string

const (
	SourceInvoice EntrySource = "INVOICE"
	SourceBill    EntrySource = "BILL"
	SourceJournal EntrySource = "JOURNAL"
)

// LedgerEntry is a single-sided debit or credit posting.
type LedgerEntry struct {
	ID          string
	TenantID    string
	EntryDate   time.Time
	AccountCode string
	AccountName string
	Reference   string
	Source      EntrySource
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Active      bool
}

// ReferenceKey groups the postings of one source document. Entries without a
// reference stand alone.
func (e LedgerEntry) ReferenceKey() string {
	if ref := strings.TrimSpace(e.Reference); ref != "" {
		return ref
	}
	return "entry:" + e.ID
}

// StockMovement is a signed quantity change: positive incoming, negative outgoing.
type StockMovement struct {
	ID           string
	TenantID     string
	ProductID    string
	Location     string
	Quantity     decimal.Decimal
	MovementDate time.Time
	Active       bool
}

// MachineLog records runtime and downtime hours of one machine on one day.
type MachineLog struct {
	ID            string
	TenantID      string
	MachineID     string
	MachineName   string
	RuntimeHours  decimal.Decimal
	DowntimeHours decimal.Decimal
	LogDate       time.Time
	Active        bool
}

// Product is catalog reference data used for pricing and reorder levels.
type Product struct {
	ID           string
	TenantID     string
	Name         string
	SKU          string
	UnitPrice    decimal.Decimal
	ReorderLevel decimal.Decimal
	Active       bool
}

// OrderLine is one product line of a sales order.
type OrderLine struct {
	ID          string
	TenantID    string
	OrderID     string
	OrderDate   time.Time
	Region      string
	ProductID   string
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	UnitCost    decimal.Decimal
	Active      bool
}

// Revenue is quantity times unit price.
func (l OrderLine) Revenue() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Cost is quantity times unit cost.
func (l OrderLine) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// Options carries per-request policy overrides.
type Options struct {
	// CriticalFraction overrides the low-stock critical threshold fraction.
	CriticalFraction *decimal.Decimal
	// TopN truncates product performance rows; zero keeps all rows.
	TopN int
}

func (o Options) token() string {
	parts := make([]string, 0, 2)
	if o.CriticalFraction != nil {
		parts = append(parts, "cf="+o.CriticalFraction.String())
	}
	if o.TopN > 0 {
		parts = append(parts, fmt.Sprintf("top=%d", o.TopN))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// Request describes one generateReport call. TenantID is mandatory on every
// request; there is no ambient tenant.
type Request struct {
	TenantID string
	Kind     Kind
	Window   Window
	AsOf     time.Time
	Options  Options
}
