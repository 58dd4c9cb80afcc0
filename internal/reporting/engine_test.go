package reporting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTrialBalanceJanuaryScenario(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{
		entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "1000"),
		entry(t, "e2", tenantA, "2025-01-20", "6000", "BILL-1", "1000", "0"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)})
	require.NoError(t, err)
	tb := res.TrialBalance
	require.NotNil(t, tb)
	require.True(t, tb.Summary.TotalDebits.Equal(dec("1000")))
	require.True(t, tb.Summary.TotalCredits.Equal(dec("1000")))
	require.True(t, tb.Summary.Difference.IsZero())
	require.True(t, tb.Summary.Balanced)
	require.False(t, res.HasDiagnostic(DiagUnbalanced))
	require.Len(t, tb.Rows, 2)
	require.Equal(t, "4000", tb.Rows[0].AccountCode)
	require.Equal(t, "6000", tb.Rows[1].AccountCode)
}

func TestTrialBalanceUnbalancedIsFlaggedNotFailed(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{
		entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "1000"),
		entry(t, "e2", tenantA, "2025-01-20", "6000", "BILL-1", "999.99", "0"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)})
	require.NoError(t, err)
	require.False(t, res.TrialBalance.Summary.Balanced)
	require.True(t, res.TrialBalance.Summary.Difference.Equal(dec("-0.01")))
	require.True(t, res.HasDiagnostic(DiagUnbalanced))
}

func TestUnknownAccountIsFatal(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{entry(t, "e1", tenantA, "2025-01-10", "9999", "X", "10", "0")}
	engine := newTestEngine(t, store, nil)

	for _, kind := range []Kind{KindTrialBalance, KindProfitLoss, KindCashFlow} {
		_, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: kind, Window: january(t)})
		require.ErrorIs(t, err, ErrUnknownAccount, kind)
	}
}

func TestInventoryMovementScenario(t *testing.T) {
	store := newMemStore()
	store.products = []Product{{ID: "P", TenantID: tenantA, Name: "Cotton Yarn", Active: true}}
	store.movements = []StockMovement{
		movement(t, "m0", tenantA, "P", "2024-12-20", "7"),
		movement(t, "m1", tenantA, "P", "2025-01-05", "50"),
		movement(t, "m2", tenantA, "P", "2025-01-10", "-20"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindInventoryMovement, Window: january(t)})
	require.NoError(t, err)
	require.Len(t, res.InventoryMovement.Rows, 1)
	row := res.InventoryMovement.Rows[0]
	require.True(t, row.Incoming.Equal(dec("50")))
	require.True(t, row.Outgoing.Equal(dec("20")))
	require.True(t, row.NetChange.Equal(dec("30")))
	require.True(t, row.Opening.Equal(dec("7")))
	require.True(t, row.Closing.Equal(dec("37")))
	require.Equal(t, "Cotton Yarn", row.ProductName)
	require.Empty(t, res.Diagnostics)
}

func TestLowStockScenario(t *testing.T) {
	store := newMemStore()
	store.products = []Product{
		{ID: "P", TenantID: tenantA, Name: "Dye", ReorderLevel: dec("20"), Active: true},
		{ID: "Q", TenantID: tenantA, Name: "Thread", ReorderLevel: dec("20"), Active: true},
		{ID: "R", TenantID: tenantA, Name: "Buttons", ReorderLevel: dec("10"), Active: true},
	}
	store.movements = []StockMovement{
		movement(t, "m1", tenantA, "P", "2025-01-05", "5"),
		movement(t, "m2", tenantA, "Q", "2025-01-05", "15"),
		movement(t, "m3", tenantA, "R", "2025-01-05", "40"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindLowStock, Window: january(t)})
	require.NoError(t, err)
	rows := res.LowStock.Rows
	require.Len(t, rows, 2)
	require.Equal(t, "P", rows[0].ProductID)
	require.True(t, rows[0].Shortage.Equal(dec("15")))
	require.Equal(t, StockCritical, rows[0].Status)
	require.Equal(t, "Q", rows[1].ProductID)
	require.Equal(t, StockWarning, rows[1].Status)
	require.Equal(t, 1, res.LowStock.Summary.Critical)
	require.True(t, res.LowStock.Summary.TotalShortage.Equal(dec("20")))

	override := decimal.RequireFromString("0.8")
	res, err = engine.Generate(context.Background(), Request{
		TenantID: tenantA, Kind: KindLowStock, Window: january(t),
		Options: Options{CriticalFraction: &override},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.LowStock.Summary.Critical)
}

func TestStockValuationAsOf(t *testing.T) {
	store := newMemStore()
	store.products = []Product{{ID: "P", TenantID: tenantA, Name: "Denim", UnitPrice: dec("12.50"), Active: true}}
	store.movements = []StockMovement{
		movement(t, "m1", tenantA, "P", "2024-11-05", "10"),
		movement(t, "m2", tenantA, "P", "2025-01-10", "-4"),
		movement(t, "m3", tenantA, "P", "2025-02-10", "100"),
		movement(t, "m4", tenantA, "GHOST", "2025-01-10", "2"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindStockValuation, AsOf: date(t, "2025-01-31")})
	require.NoError(t, err)
	sv := res.StockValuation
	require.Len(t, sv.Rows, 2)
	require.True(t, sv.Summary.TotalItems.Equal(dec("8")))
	require.True(t, sv.Summary.TotalValue.Equal(dec("75")))
	require.True(t, sv.Summary.AverageValuePerItem.Equal(dec("9.38")))
	require.True(t, res.HasDiagnostic(DiagMissingReference))
	require.NotNil(t, res.AsOf)
}

func TestProductionEfficiency(t *testing.T) {
	store := newMemStore()
	store.machines = []MachineLog{
		{ID: "l1", TenantID: tenantA, MachineID: "loom-1", MachineName: "Loom 1", RuntimeHours: dec("18"), DowntimeHours: dec("6"), LogDate: date(t, "2025-01-02"), Active: true},
		{ID: "l2", TenantID: tenantA, MachineID: "loom-2", MachineName: "Loom 2", LogDate: date(t, "2025-01-02"), Active: true},
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindProductionEfficiency, Window: january(t)})
	require.NoError(t, err)
	rows := res.ProductionEfficiency.Rows
	require.Len(t, rows, 2)
	require.True(t, rows[0].Efficiency.Equal(dec("75")))
	require.True(t, rows[1].Efficiency.IsZero())
	require.True(t, res.ProductionEfficiency.Summary.PeriodHours.Equal(dec("744")))
}

func TestSalesByRegionAndProductPerformance(t *testing.T) {
	store := newMemStore()
	day := date(t, "2025-01-15")
	store.orders = []OrderLine{
		{ID: "1", TenantID: tenantA, OrderID: "SO-1", OrderDate: day, Region: "North", ProductID: "P", ProductName: "Silk", Quantity: dec("2"), UnitPrice: dec("50"), UnitCost: dec("30"), Active: true},
		{ID: "2", TenantID: tenantA, OrderID: "SO-1", OrderDate: day, Region: "North", ProductID: "Q", ProductName: "Linen", Quantity: dec("1"), UnitPrice: dec("100"), UnitCost: dec("40"), Active: true},
		{ID: "3", TenantID: tenantA, OrderID: "SO-2", OrderDate: day, Region: "South", ProductID: "P", ProductName: "Silk", Quantity: dec("2"), UnitPrice: dec("50"), UnitCost: dec("30"), Active: true},
		{ID: "4", TenantID: tenantA, OrderID: "SO-3", OrderDate: day, Region: "", ProductID: "R", ProductName: "Wool", Quantity: dec("1"), UnitPrice: dec("100"), UnitCost: dec("90"), Active: true},
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindSalesByRegion, Window: january(t)})
	require.NoError(t, err)
	sr := res.SalesByRegion
	require.Len(t, sr.Rows, 3)
	require.Equal(t, "North", sr.Rows[0].Region)
	require.True(t, sr.Rows[0].Percentage.Equal(dec("50")))
	require.Equal(t, 1, sr.Rows[0].OrderCount)
	require.Equal(t, UnassignedRegion, sr.Rows[2].Region)
	require.Equal(t, 3, sr.Summary.TotalOrders)
	require.True(t, sr.Summary.TotalRevenue.Equal(dec("400")))
	require.Empty(t, res.Diagnostics)

	res, err = engine.Generate(context.Background(), Request{
		TenantID: tenantA, Kind: KindProductPerformance, Window: january(t),
		Options: Options{TopN: 2},
	})
	require.NoError(t, err)
	pp := res.ProductPerformance
	require.Len(t, pp.Rows, 2)
	require.Equal(t, "P", pp.Rows[0].ProductID)
	require.Equal(t, 1, pp.Rows[0].Rank)
	require.True(t, pp.Rows[0].Margin.Equal(dec("40")))
	require.Equal(t, "Q", pp.Rows[1].ProductID)
	require.Equal(t, 3, pp.Summary.Products)
	require.True(t, pp.Summary.TotalRevenue.Equal(dec("400")))
}

func TestSalesByRegionSharesSumToHundredAcrossManyRegions(t *testing.T) {
	store := newMemStore()
	day := date(t, "2025-01-15")
	for i := 0; i < 60; i++ {
		store.orders = append(store.orders, OrderLine{
			ID: fmt.Sprintf("L-%02d", i), TenantID: tenantA, OrderID: fmt.Sprintf("SO-%02d", i), OrderDate: day,
			Region: fmt.Sprintf("R%02d", i), ProductID: "P", Quantity: dec("1"), UnitPrice: dec("100"), Active: true,
		})
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindSalesByRegion, Window: january(t)})
	require.NoError(t, err)
	require.Empty(t, res.Diagnostics)
	require.Len(t, res.SalesByRegion.Rows, 60)

	sum := decimal.Zero
	for _, row := range res.SalesByRegion.Rows {
		require.True(t, row.Percentage.Equal(dec("1.67")) || row.Percentage.Equal(dec("1.66")), row.Percentage.String())
		sum = sum.Add(row.Percentage)
	}
	require.True(t, sum.Equal(dec("100")), sum.String())
	require.True(t, res.SalesByRegion.Rows[0].Percentage.Equal(dec("1.67")), "earlier regions take the extra step")
}

func TestProfitLossAndBalanceSheet(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{
		entry(t, "c1", tenantA, "2024-12-01", "1010", "CAP-1", "5000", "0"),
		entry(t, "c2", tenantA, "2024-12-01", "3000", "CAP-1", "0", "5000"),
		entry(t, "s1", tenantA, "2025-01-05", "1100", "INV-1", "1200", "0"),
		entry(t, "s2", tenantA, "2025-01-05", "4000", "INV-1", "0", "1200"),
		entry(t, "g1", tenantA, "2025-01-05", "5000", "INV-1", "700", "0"),
		entry(t, "g2", tenantA, "2025-01-05", "1220", "INV-1", "0", "700"),
		entry(t, "w1", tenantA, "2025-01-25", "6000", "PAY-1", "300", "0"),
		entry(t, "w2", tenantA, "2025-01-25", "1010", "PAY-1", "0", "300"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindProfitLoss, Window: january(t)})
	require.NoError(t, err)
	pl := res.ProfitLoss.Summary
	require.True(t, pl.Revenue.Equal(dec("1200")))
	require.True(t, pl.COGS.Equal(dec("700")))
	require.True(t, pl.GrossProfit.Equal(dec("500")))
	require.True(t, pl.NetIncome.Equal(dec("200")))
	require.True(t, pl.GrossMargin.Equal(dec("41.67")))
	require.True(t, pl.NetMargin.Equal(dec("16.67")))
	require.Equal(t, SectionRevenue, res.ProfitLoss.Rows[0].Section)

	res, err = engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindBalanceSheet, AsOf: date(t, "2025-01-31")})
	require.NoError(t, err)
	bs := res.BalanceSheet.Summary
	require.True(t, bs.Balanced, "difference %s", bs.Difference)
	require.True(t, bs.CurrentEarnings.Equal(dec("200")))
	require.True(t, bs.TotalAssets.Equal(dec("5200")))
	require.True(t, bs.TotalEquity.Equal(dec("5200")))
	require.False(t, res.HasDiagnostic(DiagUnbalanced))
	last := res.BalanceSheet.Rows[len(res.BalanceSheet.Rows)-1]
	require.Equal(t, CurrentEarningsCode, last.AccountCode)
}

func TestCashFlowDirectMethod(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{
		entry(t, "o1", tenantA, "2024-12-01", "1010", "CAP-1", "1000", "0"),
		entry(t, "o2", tenantA, "2024-12-01", "3000", "CAP-1", "0", "1000"),
		entry(t, "r1", tenantA, "2025-01-05", "1010", "RCPT-1", "400", "0"),
		entry(t, "r2", tenantA, "2025-01-05", "1100", "RCPT-1", "0", "400"),
		entry(t, "m1", tenantA, "2025-01-08", "1500", "CAPEX-1", "250", "0"),
		entry(t, "m2", tenantA, "2025-01-08", "1010", "CAPEX-1", "0", "250"),
		entry(t, "l1", tenantA, "2025-01-09", "1010", "LOAN-1", "600", "0"),
		entry(t, "l2", tenantA, "2025-01-09", "2500", "LOAN-1", "0", "600"),
		entry(t, "t1", tenantA, "2025-01-12", "1000", "TRF-1", "50", "0"),
		entry(t, "t2", tenantA, "2025-01-12", "1010", "TRF-1", "0", "50"),
		entry(t, "n1", tenantA, "2025-01-13", "6500", "DEP-1", "20", "0"),
		entry(t, "n2", tenantA, "2025-01-13", "1510", "DEP-1", "0", "20"),
	}
	engine := newTestEngine(t, store, nil)

	res, err := engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindCashFlow, Window: january(t)})
	require.NoError(t, err)
	cf := res.CashFlow.Summary
	require.True(t, cf.OpeningCash.Equal(dec("1000")))
	require.True(t, cf.Operating.Equal(dec("400")))
	require.True(t, cf.Investing.Equal(dec("-250")))
	require.True(t, cf.Financing.Equal(dec("600")))
	require.True(t, cf.Transfers.IsZero())
	require.True(t, cf.NetChange.Equal(dec("750")))
	require.True(t, cf.ClosingCash.Equal(dec("1750")))
	require.True(t, cf.LedgerClosingCash.Equal(cf.ClosingCash))
	require.Len(t, res.CashFlow.Rows, 3)
	require.False(t, res.HasDiagnostic(DiagCrossCheck))
}

func TestEmptyWindowReturnsZeroedReports(t *testing.T) {
	engine := newTestEngine(t, newMemStore(), nil)
	ctx := context.Background()
	for _, kind := range Kinds() {
		req := Request{TenantID: tenantA, Kind: kind, Window: january(t), AsOf: date(t, "2025-01-31")}
		res, err := engine.Generate(ctx, req)
		require.NoError(t, err, kind)
		require.Zero(t, res.RowCount(), kind)
		require.Empty(t, res.Diagnostics, kind)
	}

	res, err := engine.Generate(ctx, Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)})
	require.NoError(t, err)
	require.NotNil(t, res.TrialBalance.Rows)
	require.True(t, res.TrialBalance.Summary.TotalDebits.IsZero())
	require.True(t, res.TrialBalance.Summary.Balanced)
}

func TestRequestValidationFailsFast(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(t, store, nil)
	ctx := context.Background()
	jan := january(t)
	bad := decimal.RequireFromString("1.5")

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"missing tenant", Request{Kind: KindTrialBalance, Window: jan}, ErrScopeViolation},
		{"unknown tenant", Request{TenantID: "nobody", Kind: KindTrialBalance, Window: jan}, ErrScopeViolation},
		{"inverted window", Request{TenantID: tenantA, Kind: KindTrialBalance, Window: Window{From: jan.To, To: jan.From}}, ErrEmptyWindow},
		{"missing window", Request{TenantID: tenantA, Kind: KindLowStock}, ErrEmptyWindow},
		{"missing as-of", Request{TenantID: tenantA, Kind: KindBalanceSheet}, ErrEmptyWindow},
		{"unknown kind", Request{TenantID: tenantA, Kind: "pivot", Window: jan}, ErrUnknownKind},
		{"bad fraction", Request{TenantID: tenantA, Kind: KindLowStock, Window: jan, Options: Options{CriticalFraction: &bad}}, ErrInvalidOptions},
		{"negative top", Request{TenantID: tenantA, Kind: KindProductPerformance, Window: jan, Options: Options{TopN: -1}}, ErrInvalidOptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Generate(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Zero(t, store.calls.Load(), "validation failures must not read data")
}

func TestTenantIsolationAcrossKinds(t *testing.T) {
	store := newMemStore()
	store.leaky = true
	store.ledger = []LedgerEntry{
		entry(t, "a1", tenantA, "2025-01-10", "4000", "INV-A", "0", "100"),
		entry(t, "a2", tenantA, "2025-01-10", "1010", "INV-A", "100", "0"),
		entry(t, "b1", tenantB, "2025-01-10", "4010", "INV-B", "0", "777"),
		entry(t, "b2", tenantB, "2025-01-10", "1000", "INV-B", "777", "0"),
	}
	store.products = []Product{
		{ID: "PA", TenantID: tenantA, ReorderLevel: dec("10"), UnitPrice: dec("1"), Active: true},
		{ID: "PB", TenantID: tenantB, ReorderLevel: dec("10"), UnitPrice: dec("1"), Active: true},
	}
	store.movements = []StockMovement{
		movement(t, "ma", tenantA, "PA", "2025-01-10", "3"),
		movement(t, "mb", tenantB, "PB", "2025-01-10", "4"),
	}
	store.machines = []MachineLog{
		{ID: "la", TenantID: tenantA, MachineID: "MA", RuntimeHours: dec("1"), LogDate: date(t, "2025-01-10"), Active: true},
		{ID: "lb", TenantID: tenantB, MachineID: "MB", RuntimeHours: dec("1"), LogDate: date(t, "2025-01-10"), Active: true},
	}
	store.orders = []OrderLine{
		{ID: "oa", TenantID: tenantA, OrderID: "SA", ProductID: "PA", Region: "A", Quantity: dec("1"), UnitPrice: dec("1"), OrderDate: date(t, "2025-01-10"), Active: true},
		{ID: "ob", TenantID: tenantB, OrderID: "SB", ProductID: "PB", Region: "B", Quantity: dec("1"), UnitPrice: dec("1"), OrderDate: date(t, "2025-01-10"), Active: true},
	}
	engine := newTestEngine(t, store, nil)
	ctx := context.Background()

	for _, kind := range Kinds() {
		res, err := engine.Generate(ctx, Request{TenantID: tenantA, Kind: kind, Window: january(t), AsOf: date(t, "2025-01-31")})
		require.NoError(t, err, kind)
		scrubbed := *res
		scrubbed.ID = uuid.Nil
		scrubbed.GeneratedAt = time.Time{}
		raw, err := EncodeResult(&scrubbed)
		require.NoError(t, err)
		for _, foreign := range []string{"4010", "PB", "MB", "SB", `"B"`, "777"} {
			require.NotContains(t, string(raw), foreign, "kind %s leaked %s", kind, foreign)
		}
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{
		entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "1000"),
		entry(t, "e2", tenantA, "2025-01-20", "6000", "BILL-1", "1000", "0"),
	}
	engine := newTestEngine(t, store, nil)
	req := Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)}

	first, err := engine.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.TrialBalance, second.TrialBalance)
	require.Equal(t, first.Diagnostics, second.Diagnostics)
}

func TestGenerateUsesCacheAndInvalidates(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "10")}
	cache := NewMemoryCache(time.Minute)
	engine := newTestEngine(t, store, cache)
	req := Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)}
	ctx := context.Background()

	first, err := engine.Generate(ctx, req)
	require.NoError(t, err)
	calls := store.calls.Load()
	cached, err := engine.Generate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, calls, store.calls.Load(), "cache hit must not read the store")
	require.Equal(t, first.ID, cached.ID)

	store.mu.Lock()
	store.ledger = append(store.ledger, entry(t, "e2", tenantA, "2025-01-11", "6000", "BILL-1", "10", "0"))
	store.mu.Unlock()
	require.NoError(t, engine.Invalidate(ctx, tenantA))

	fresh, err := engine.Generate(ctx, req)
	require.NoError(t, err)
	require.Len(t, fresh.TrialBalance.Rows, 2)
	require.ErrorIs(t, engine.Invalidate(ctx, ""), ErrScopeViolation)
}

func TestTenantIDSpellingsShareOneTenant(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "10")}
	cache := NewMemoryCache(time.Minute)
	engine := newTestEngine(t, store, cache)
	ctx := context.Background()

	canonical, err := engine.Generate(ctx, Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)})
	require.NoError(t, err)

	for _, spelling := range []string{
		strings.ToUpper(tenantA),
		"{" + tenantA + "}",
		"urn:uuid:" + tenantA,
		" " + tenantA + " ",
	} {
		res, err := engine.Generate(ctx, Request{TenantID: spelling, Kind: KindTrialBalance, Window: january(t)})
		require.NoError(t, err, spelling)
		require.Equal(t, tenantA, res.TenantID)
		require.Equal(t, canonical.ID, res.ID, fmt.Sprintf("%q should hit the canonical cache entry", spelling))
	}

	require.NoError(t, engine.Invalidate(ctx, strings.ToUpper(tenantA)))
	fresh, err := engine.Generate(ctx, Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)})
	require.NoError(t, err)
	require.NotEqual(t, canonical.ID, fresh.ID)
}

func TestConcurrentIdenticalRequestsCoalesce(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "10")}
	store.gate = make(chan struct{})
	engine := newTestEngine(t, store, nil)
	req := Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = engine.Generate(context.Background(), req)
		}()
	}
	require.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
	require.Equal(t, int32(1), store.calls.Load())
	for i := 1; i < callers; i++ {
		require.Equal(t, results[0].ID, results[i].ID)
	}
}

func TestCancelledLeaderDoesNotFailWaiter(t *testing.T) {
	store := newMemStore()
	store.ledger = []LedgerEntry{entry(t, "e1", tenantA, "2025-01-10", "4000", "INV-1", "0", "10")}
	store.gate = make(chan struct{})
	cache := NewMemoryCache(time.Minute)
	engine := newTestEngine(t, store, cache)
	req := Request{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := engine.Generate(leaderCtx, req)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)

	waiterRes := make(chan *Result, 1)
	waiterErr := make(chan error, 1)
	go func() {
		res, err := engine.Generate(context.Background(), req)
		waiterRes <- res
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	require.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, time.Millisecond)
	close(store.gate)
	require.NoError(t, <-waiterErr)
	require.NotNil(t, <-waiterRes)
	require.Equal(t, 1, cache.Len(), "only the completed computation is cached")
}

func TestCancelledComputationIsNotCached(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	defer close(store.gate)
	cache := NewMemoryCache(time.Minute)
	engine := newTestEngine(t, store, cache)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := engine.Generate(ctx, Request{TenantID: tenantA, Kind: KindSalesByRegion, Window: january(t)})
	require.ErrorIs(t, err, context.Canceled)
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, cache.Len())
}

func TestReaderTimeoutSurfacesAsTimeout(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	defer close(store.gate)
	engine, err := NewEngine(EngineConfig{Store: store, ReadTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), Request{TenantID: tenantA, Kind: KindProductionEfficiency, Window: january(t)})
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, int32(1), store.calls.Load(), "timeouts are not retried")
}

func TestGenerateBatchKeepsOrder(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(t, store, NewMemoryCache(time.Minute))
	reqs := []Request{
		{TenantID: tenantA, Kind: KindTrialBalance, Window: january(t)},
		{TenantID: tenantA, Kind: KindStockValuation, AsOf: date(t, "2025-01-31")},
		{TenantID: tenantB, Kind: KindLowStock, Window: january(t)},
	}
	results, err := engine.GenerateBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		require.Equal(t, reqs[i].Kind, res.Kind)
		require.Equal(t, reqs[i].TenantID, res.TenantID)
	}

	reqs = append(reqs, Request{TenantID: tenantA, Kind: "bogus", Window: january(t)})
	_, err = engine.GenerateBatch(context.Background(), reqs)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	require.Error(t, err)
	_, err = NewEngine(EngineConfig{Store: newMemStore(), CriticalFraction: decimal.NewNullDecimal(dec("2"))})
	require.ErrorIs(t, err, ErrInvalidOptions)
}
