package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCriticalFraction is the share of the reorder level at or below which
// a low stock row is CRITICAL.
var DefaultCriticalFraction = decimal.RequireFromString("0.5")

// buildInput carries everything a builder needs. The tenant has already been
// resolved and the window normalised.
type buildInput struct {
	tenant    Tenant
	currency  Currency
	window    Window
	asOf      time.Time
	options   Options
	fraction  decimal.Decimal
	chart     *Chart
	reader    *ScopedReader
	shardSize int
}

// builder fills the kind's variant on res and may attach build-time
// diagnostics. Post-build invariants are checked separately by Validate.
type builder func(ctx context.Context, in buildInput, res *Result) error

var builders = map[Kind]builder{
	KindTrialBalance:         buildTrialBalance,
	KindProfitLoss:           buildProfitLoss,
	KindBalanceSheet:         buildBalanceSheet,
	KindCashFlow:             buildCashFlow,
	KindStockValuation:       buildStockValuation,
	KindLowStock:             buildLowStock,
	KindInventoryMovement:    buildInventoryMovement,
	KindSalesByRegion:        buildSalesByRegion,
	KindProductPerformance:   buildProductPerformance,
	KindProductionEfficiency: buildProductionEfficiency,
}

func lookupBuilder(kind Kind) (builder, error) {
	b, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return b, nil
}

// classifiedLedger reads ledger entries, classifies each and flags postings
// that break the single-sided rule. Flagged entries are still aggregated.
func classifiedLedger(ctx context.Context, in buildInput, window Window) ([]classifiedEntry, []Diagnostic, error) {
	entries, err := in.reader.LedgerEntries(ctx, in.tenant.ID, window)
	if err != nil {
		return nil, nil, err
	}
	classified, err := classifyAll(in.chart, entries)
	if err != nil {
		return nil, nil, err
	}
	return classified, postingDiagnostics(entries), nil
}

func postingDiagnostics(entries []LedgerEntry) []Diagnostic {
	var out []Diagnostic
	for _, e := range entries {
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			out = append(out, Diagnostic{
				Code:    DiagOutOfBounds,
				Message: fmt.Sprintf("entry %s has a negative amount", e.ID),
				Ref:     e.ID,
			})
			continue
		}
		if e.Debit.IsZero() == e.Credit.IsZero() {
			out = append(out, Diagnostic{
				Code:    DiagOutOfBounds,
				Message: fmt.Sprintf("entry %s must carry exactly one of debit or credit", e.ID),
				Ref:     e.ID,
			})
		}
	}
	return out
}

var (
	debitMeasure  = Sum("debit", func(e classifiedEntry) decimal.Decimal { return e.Debit })
	creditMeasure = Sum("credit", func(e classifiedEntry) decimal.Decimal { return e.Credit })
)

func byAccountCode(e classifiedEntry) string { return e.Account.Code }

// accountActivity groups classified entries by account code.
func accountActivity(ctx context.Context, in buildInput, entries []classifiedEntry) (Groups[string], error) {
	return AggregateParallel(ctx, entries, in.shardSize, byAccountCode, debitMeasure, creditMeasure)
}

// signedBalance returns debit − credit for debit-side types and credit − debit
// otherwise. Contra accounts therefore show a negative balance.
func signedBalance(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if side, _ := normalSideFor(t); side == SideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// catalog indexes the tenant's products by ID.
type catalog map[string]Product

func loadCatalog(ctx context.Context, in buildInput) (catalog, error) {
	products, err := in.reader.Products(ctx, in.tenant.ID)
	if err != nil {
		return nil, err
	}
	out := make(catalog, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// resolve returns the product or a MISSING_REFERENCE diagnostic.
func (c catalog) resolve(productID string) (Product, *Diagnostic) {
	if p, ok := c[productID]; ok {
		return p, nil
	}
	return Product{ID: productID}, &Diagnostic{
		Code:    DiagMissingReference,
		Message: fmt.Sprintf("product %s is not in the catalog", productID),
		Ref:     productID,
	}
}

func byProduct(m StockMovement) string { return m.ProductID }

var quantityMeasure = Sum("quantity", func(m StockMovement) decimal.Decimal { return m.Quantity })

func stringLess(a, b string) bool { return a < b }
