package reporting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate runs the post-build checks of the populated variant and returns
// the violations found. It never modifies the report.
func Validate(res *Result) []Diagnostic {
	if res == nil {
		return nil
	}
	var v validator
	switch {
	case res.TrialBalance != nil:
		v.trialBalance(res.TrialBalance)
	case res.BalanceSheet != nil:
		v.balanceSheet(res.BalanceSheet)
	case res.CashFlow != nil:
		v.cashFlow(res.CashFlow)
	case res.StockValuation != nil:
		v.stockValuation(res.StockValuation)
	case res.LowStock != nil:
		v.lowStock(res.LowStock)
	case res.InventoryMovement != nil:
		v.inventoryMovement(res.InventoryMovement)
	case res.SalesByRegion != nil:
		v.salesByRegion(res.SalesByRegion)
	case res.ProductPerformance != nil:
		v.productPerformance(res.ProductPerformance)
	case res.ProductionEfficiency != nil:
		v.productionEfficiency(res.ProductionEfficiency)
	}
	return v.out
}

type validator struct {
	out []Diagnostic
}

func (v *validator) flag(code DiagnosticCode, ref, format string, args ...any) {
	v.out = append(v.out, Diagnostic{Code: code, Message: fmt.Sprintf(format, args...), Ref: ref})
}

func (v *validator) percentInBounds(ref, label string, pct decimal.Decimal) {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		v.flag(DiagOutOfBounds, ref, "%s %s%% outside [0, 100]", label, pct)
	}
}

func (v *validator) nonNegative(ref, label string, d decimal.Decimal) {
	if d.IsNegative() {
		v.flag(DiagOutOfBounds, ref, "%s %s is negative", label, d)
	}
}

func (v *validator) trialBalance(tb *TrialBalance) {
	if !tb.Summary.Difference.IsZero() {
		v.flag(DiagUnbalanced, "", "debits %s and credits %s differ by %s",
			tb.Summary.TotalDebits, tb.Summary.TotalCredits, tb.Summary.Difference)
	}
}

func (v *validator) balanceSheet(bs *BalanceSheet) {
	if !bs.Summary.Difference.IsZero() {
		v.flag(DiagUnbalanced, "", "assets %s differ from liabilities and equity %s by %s",
			bs.Summary.TotalAssets, bs.Summary.TotalLiabilities.Add(bs.Summary.TotalEquity), bs.Summary.Difference)
	}
}

func (v *validator) cashFlow(cf *CashFlow) {
	if !cf.Summary.ClosingCash.Equal(cf.Summary.LedgerClosingCash) {
		v.flag(DiagCrossCheck, "", "closing cash %s does not match cash balance %s",
			cf.Summary.ClosingCash, cf.Summary.LedgerClosingCash)
	}
}

func (v *validator) stockValuation(sv *StockValuation) {
	for _, row := range sv.Rows {
		v.nonNegative(row.ProductID, "quantity on hand", row.Quantity)
	}
}

func (v *validator) lowStock(ls *LowStock) {
	for _, row := range ls.Rows {
		v.nonNegative(row.ProductID, "shortage", row.Shortage)
		v.nonNegative(row.ProductID, "current stock", row.CurrentStock)
	}
}

func (v *validator) inventoryMovement(im *InventoryMovement) {
	for _, row := range im.Rows {
		if !row.NetChange.Equal(row.SignedSum) {
			v.flag(DiagCrossCheck, row.ProductID, "net change %s does not match signed movement sum %s",
				row.NetChange, row.SignedSum)
		}
		v.nonNegative(row.ProductID, "closing quantity", row.Closing)
	}
}

func (v *validator) salesByRegion(sr *SalesByRegion) {
	sum := decimal.Zero
	for _, row := range sr.Rows {
		v.percentInBounds(row.Region, "region share", row.Percentage)
		sum = sum.Add(row.Percentage)
	}
	if sr.Summary.TotalRevenue.IsZero() || len(sr.Rows) == 0 {
		return
	}
	if sum.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		v.flag(DiagOutOfBounds, "", "region shares sum to %s%%, expected 100 ± %s", sum, percentTolerance)
	}
}

func (v *validator) productPerformance(pp *ProductPerformance) {
	for _, row := range pp.Rows {
		v.nonNegative(row.ProductID, "quantity sold", row.Quantity)
	}
}

func (v *validator) productionEfficiency(pe *ProductionEfficiency) {
	for _, row := range pe.Rows {
		v.percentInBounds(row.MachineID, "efficiency", row.Efficiency)
		v.nonNegative(row.MachineID, "runtime hours", row.RuntimeHours)
		v.nonNegative(row.MachineID, "downtime hours", row.DowntimeHours)
		if pe.Summary.PeriodHours.IsPositive() {
			if total := row.RuntimeHours.Add(row.DowntimeHours); total.GreaterThan(pe.Summary.PeriodHours) {
				v.flag(DiagOutOfBounds, row.MachineID, "logged hours %s exceed period hours %s",
					total, pe.Summary.PeriodHours)
			}
		}
	}
}
