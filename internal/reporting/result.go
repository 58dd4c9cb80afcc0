package reporting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiagnosticCode classifies a non-fatal invariant violation.
type DiagnosticCode string

const (
	DiagUnbalanced       DiagnosticCode = "UNBALANCED"
	DiagOutOfBounds      DiagnosticCode = "OUT_OF_BOUNDS"
	DiagCrossCheck       DiagnosticCode = "CROSS_CHECK"
	DiagMissingReference DiagnosticCode = "MISSING_REFERENCE"
)

// Diagnostic flags inconsistent source data without discarding the report.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	Message string         `json:"message"`
	Ref     string         `json:"ref,omitempty"`
}

// Result is one generated report. Exactly one variant pointer is populated,
// selected by Kind.
type Result struct {
	ID          uuid.UUID    `json:"id"`
	Kind        Kind         `json:"kind"`
	TenantID    string       `json:"tenant_id"`
	Currency    Currency     `json:"currency"`
	Window      Window       `json:"window"`
	AsOf        *time.Time   `json:"as_of,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Diagnostics []Diagnostic `json:"diagnostics"`

	TrialBalance         *TrialBalance         `json:"trial_balance,omitempty"`
	ProfitLoss           *ProfitLoss           `json:"profit_loss,omitempty"`
	BalanceSheet         *BalanceSheet         `json:"balance_sheet,omitempty"`
	CashFlow             *CashFlow             `json:"cash_flow,omitempty"`
	StockValuation       *StockValuation       `json:"stock_valuation,omitempty"`
	LowStock             *LowStock             `json:"low_stock,omitempty"`
	InventoryMovement    *InventoryMovement    `json:"inventory_movement,omitempty"`
	SalesByRegion        *SalesByRegion        `json:"sales_by_region,omitempty"`
	ProductPerformance   *ProductPerformance   `json:"product_performance,omitempty"`
	ProductionEfficiency *ProductionEfficiency `json:"production_efficiency,omitempty"`
}

// HasDiagnostic reports whether a diagnostic with code is attached.
func (r *Result) HasDiagnostic(code DiagnosticCode) bool {
	if r == nil {
		return false
	}
	for _, d := range r.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

// RowCount returns the number of detail rows of the populated variant.
func (r *Result) RowCount() int {
	switch {
	case r == nil:
		return 0
	case r.TrialBalance != nil:
		return len(r.TrialBalance.Rows)
	case r.ProfitLoss != nil:
		return len(r.ProfitLoss.Rows)
	case r.BalanceSheet != nil:
		return len(r.BalanceSheet.Rows)
	case r.CashFlow != nil:
		return len(r.CashFlow.Rows)
	case r.StockValuation != nil:
		return len(r.StockValuation.Rows)
	case r.LowStock != nil:
		return len(r.LowStock.Rows)
	case r.InventoryMovement != nil:
		return len(r.InventoryMovement.Rows)
	case r.SalesByRegion != nil:
		return len(r.SalesByRegion.Rows)
	case r.ProductPerformance != nil:
		return len(r.ProductPerformance.Rows)
	case r.ProductionEfficiency != nil:
		return len(r.ProductionEfficiency.Rows)
	}
	return 0
}

// TrialBalanceRow is the window activity of one account.
type TrialBalanceRow struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	AccountType AccountType     `json:"account_type"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

type TrialBalanceSummary struct {
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	Difference   decimal.Decimal `json:"difference"`
	Balanced     bool            `json:"balanced"`
}

type TrialBalance struct {
	Summary TrialBalanceSummary `json:"summary"`
	Rows    []TrialBalanceRow   `json:"rows"`
}

// ProfitLossSection groups profit and loss lines.
type ProfitLossSection string

const (
	SectionRevenue ProfitLossSection = "REVENUE"
	SectionCOGS    ProfitLossSection = "COGS"
	SectionExpense ProfitLossSection = "EXPENSE"
)

type ProfitLossRow struct {
	Section     ProfitLossSection `json:"section"`
	AccountCode string            `json:"account_code"`
	AccountName string            `json:"account_name"`
	Amount      decimal.Decimal   `json:"amount"`
}

type ProfitLossSummary struct {
	Revenue           decimal.Decimal `json:"revenue"`
	COGS              decimal.Decimal `json:"cogs"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	OperatingExpenses decimal.Decimal `json:"operating_expenses"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	NetIncome         decimal.Decimal `json:"net_income"`
	GrossMargin       decimal.Decimal `json:"gross_margin_pct"`
	NetMargin         decimal.Decimal `json:"net_margin_pct"`
}

type ProfitLoss struct {
	Summary ProfitLossSummary `json:"summary"`
	Rows    []ProfitLossRow   `json:"rows"`
}

// CurrentEarningsCode labels the synthetic equity line carrying cumulative
// revenue minus expense in a balance sheet.
const CurrentEarningsCode = "CURRENT_EARNINGS"

type BalanceSheetRow struct {
	Section     AccountType     `json:"section"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Balance     decimal.Decimal `json:"balance"`
}

type BalanceSheetSummary struct {
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	CurrentEarnings  decimal.Decimal `json:"current_earnings"`
	Difference       decimal.Decimal `json:"difference"`
	Balanced         bool            `json:"balanced"`
}

type BalanceSheet struct {
	Summary BalanceSheetSummary `json:"summary"`
	Rows    []BalanceSheetRow   `json:"rows"`
}

// CashFlowRow is the net cash effect of one source document.
type CashFlowRow struct {
	Reference      string           `json:"reference"`
	Date           time.Time        `json:"date"`
	Category       CashFlowCategory `json:"category"`
	CounterAccount string           `json:"counter_account"`
	Amount         decimal.Decimal  `json:"amount"`
}

type CashFlowSummary struct {
	OpeningCash decimal.Decimal `json:"opening_cash"`
	Operating   decimal.Decimal `json:"operating"`
	Investing   decimal.Decimal `json:"investing"`
	Financing   decimal.Decimal `json:"financing"`
	Transfers   decimal.Decimal `json:"transfers"`
	NetChange   decimal.Decimal `json:"net_change"`
	ClosingCash decimal.Decimal `json:"closing_cash"`
	// LedgerClosingCash is the cash balance at window end read directly from
	// the cash accounts, used for the closing cross-check.
	LedgerClosingCash decimal.Decimal `json:"ledger_closing_cash"`
}

type CashFlow struct {
	Summary CashFlowSummary `json:"summary"`
	Rows    []CashFlowRow   `json:"rows"`
}

type StockValuationRow struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

type StockValuationSummary struct {
	TotalValue          decimal.Decimal `json:"total_value"`
	TotalItems          decimal.Decimal `json:"total_items"`
	AverageValuePerItem decimal.Decimal `json:"average_value_per_item"`
	ProductCount        int             `json:"product_count"`
}

type StockValuation struct {
	Summary StockValuationSummary `json:"summary"`
	Rows    []StockValuationRow   `json:"rows"`
}

// StockStatus grades a low stock row.
type StockStatus string

const (
	StockCritical StockStatus = "CRITICAL"
	StockWarning  StockStatus = "WARNING"
)

type LowStockRow struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SKU          string          `json:"sku"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	Shortage     decimal.Decimal `json:"shortage"`
	Status       StockStatus     `json:"status"`
}

type LowStockSummary struct {
	CriticalFraction decimal.Decimal `json:"critical_fraction"`
	TotalProducts    int             `json:"total_products"`
	Critical         int             `json:"critical"`
	Warning          int             `json:"warning"`
	TotalShortage    decimal.Decimal `json:"total_shortage"`
}

type LowStock struct {
	Summary LowStockSummary `json:"summary"`
	Rows    []LowStockRow   `json:"rows"`
}

type InventoryMovementRow struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Opening     decimal.Decimal `json:"opening"`
	Incoming    decimal.Decimal `json:"incoming"`
	Outgoing    decimal.Decimal `json:"outgoing"`
	NetChange   decimal.Decimal `json:"net_change"`
	Closing     decimal.Decimal `json:"closing"`
	// SignedSum is the raw signed total of the window movements.
	SignedSum decimal.Decimal `json:"signed_sum"`
	Movements int             `json:"movements"`
}

type InventoryMovementSummary struct {
	TotalIncoming  decimal.Decimal `json:"total_incoming"`
	TotalOutgoing  decimal.Decimal `json:"total_outgoing"`
	NetChange      decimal.Decimal `json:"net_change"`
	TotalMovements int             `json:"total_movements"`
}

type InventoryMovement struct {
	Summary InventoryMovementSummary `json:"summary"`
	Rows    []InventoryMovementRow   `json:"rows"`
}

type SalesByRegionRow struct {
	Region     string          `json:"region"`
	Revenue    decimal.Decimal `json:"revenue"`
	OrderCount int             `json:"order_count"`
	Percentage decimal.Decimal `json:"percentage"`
}

type SalesByRegionSummary struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalOrders  int             `json:"total_orders"`
	Regions      int             `json:"regions"`
}

type SalesByRegion struct {
	Summary SalesByRegionSummary `json:"summary"`
	Rows    []SalesByRegionRow   `json:"rows"`
}

type ProductPerformanceRow struct {
	Rank        int             `json:"rank"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Margin      decimal.Decimal `json:"margin_pct"`
}

type ProductPerformanceSummary struct {
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	TotalGrossProfit decimal.Decimal `json:"total_gross_profit"`
	Margin           decimal.Decimal `json:"margin_pct"`
	Products         int             `json:"products"`
}

type ProductPerformance struct {
	Summary ProductPerformanceSummary `json:"summary"`
	Rows    []ProductPerformanceRow   `json:"rows"`
}

type ProductionEfficiencyRow struct {
	MachineID     string          `json:"machine_id"`
	MachineName   string          `json:"machine_name"`
	RuntimeHours  decimal.Decimal `json:"runtime_hours"`
	DowntimeHours decimal.Decimal `json:"downtime_hours"`
	Efficiency    decimal.Decimal `json:"efficiency_pct"`
	Logs          int             `json:"logs"`
}

type ProductionEfficiencySummary struct {
	TotalRuntimeHours  decimal.Decimal `json:"total_runtime_hours"`
	TotalDowntimeHours decimal.Decimal `json:"total_downtime_hours"`
	OverallEfficiency  decimal.Decimal `json:"overall_efficiency_pct"`
	Machines           int             `json:"machines"`
	// PeriodHours is the calendar hours covered by the window, the ceiling
	// for runtime plus downtime of one machine.
	PeriodHours decimal.Decimal `json:"period_hours"`
}

type ProductionEfficiency struct {
	Summary ProductionEfficiencySummary `json:"summary"`
	Rows    []ProductionEfficiencyRow   `json:"rows"`
}
