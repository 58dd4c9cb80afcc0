package reporting

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

func buildTrialBalance(ctx context.Context, in buildInput, res *Result) error {
	entries, diags, err := classifiedLedger(ctx, in, in.window)
	if err != nil {
		return err
	}
	groups, err := accountActivity(ctx, in, entries)
	if err != nil {
		return err
	}
	res.Diagnostics = append(res.Diagnostics, diags...)

	tb := &TrialBalance{Rows: []TrialBalanceRow{}}
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, code := range groups.Keys(stringLess) {
		sums := groups[code]
		debit, credit := sums.Get("debit"), sums.Get("credit")
		if debit.IsZero() && credit.IsZero() {
			continue
		}
		acc, _ := in.chart.Lookup(code)
		totalDebit = totalDebit.Add(debit)
		totalCredit = totalCredit.Add(credit)
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			AccountCode: acc.Code,
			AccountName: acc.Name,
			AccountType: acc.Type,
			Debit:       in.currency.Round(debit),
			Credit:      in.currency.Round(credit),
			Balance:     in.currency.Round(debit.Sub(credit)),
		})
	}
	tb.Summary.TotalDebits = in.currency.Round(totalDebit)
	tb.Summary.TotalCredits = in.currency.Round(totalCredit)
	tb.Summary.Difference = tb.Summary.TotalDebits.Sub(tb.Summary.TotalCredits)
	tb.Summary.Balanced = tb.Summary.Difference.IsZero()
	res.TrialBalance = tb
	return nil
}

func buildProfitLoss(ctx context.Context, in buildInput, res *Result) error {
	entries, diags, err := classifiedLedger(ctx, in, in.window)
	if err != nil {
		return err
	}
	groups, err := accountActivity(ctx, in, entries)
	if err != nil {
		return err
	}
	res.Diagnostics = append(res.Diagnostics, diags...)

	var revenue, cogs, opex decimal.Decimal
	var revenueRows, cogsRows, expenseRows []ProfitLossRow
	for _, code := range groups.Keys(stringLess) {
		acc, _ := in.chart.Lookup(code)
		sums := groups[code]
		debit, credit := sums.Get("debit"), sums.Get("credit")
		if debit.IsZero() && credit.IsZero() {
			continue
		}
		switch acc.Type {
		case AccountRevenue:
			amount := credit.Sub(debit)
			revenue = revenue.Add(amount)
			revenueRows = append(revenueRows, profitLossRow(in, SectionRevenue, acc, amount))
		case AccountExpense:
			amount := debit.Sub(credit)
			if acc.Subtype == SubtypeCOGS {
				cogs = cogs.Add(amount)
				cogsRows = append(cogsRows, profitLossRow(in, SectionCOGS, acc, amount))
				continue
			}
			opex = opex.Add(amount)
			expenseRows = append(expenseRows, profitLossRow(in, SectionExpense, acc, amount))
		}
	}

	gross := revenue.Sub(cogs)
	totalExpenses := cogs.Add(opex)
	net := revenue.Sub(totalExpenses)

	pl := &ProfitLoss{Rows: make([]ProfitLossRow, 0, len(revenueRows)+len(cogsRows)+len(expenseRows))}
	pl.Rows = append(pl.Rows, revenueRows...)
	pl.Rows = append(pl.Rows, cogsRows...)
	pl.Rows = append(pl.Rows, expenseRows...)
	pl.Summary = ProfitLossSummary{
		Revenue:           in.currency.Round(revenue),
		COGS:              in.currency.Round(cogs),
		GrossProfit:       in.currency.Round(gross),
		OperatingExpenses: in.currency.Round(opex),
		TotalExpenses:     in.currency.Round(totalExpenses),
		NetIncome:         in.currency.Round(net),
		GrossMargin:       roundPercent(percentOf(gross, revenue)),
		NetMargin:         roundPercent(percentOf(net, revenue)),
	}
	res.ProfitLoss = pl
	return nil
}

func profitLossRow(in buildInput, section ProfitLossSection, acc Account, amount decimal.Decimal) ProfitLossRow {
	return ProfitLossRow{
		Section:     section,
		AccountCode: acc.Code,
		AccountName: acc.Name,
		Amount:      in.currency.Round(amount),
	}
}

var balanceSheetSections = map[AccountType]int{
	AccountAsset:     0,
	AccountLiability: 1,
	AccountEquity:    2,
}

func buildBalanceSheet(ctx context.Context, in buildInput, res *Result) error {
	entries, diags, err := classifiedLedger(ctx, in, AsOfWindow(in.asOf))
	if err != nil {
		return err
	}
	groups, err := accountActivity(ctx, in, entries)
	if err != nil {
		return err
	}
	res.Diagnostics = append(res.Diagnostics, diags...)

	var assets, liabilities, equity, earnings decimal.Decimal
	rows := []BalanceSheetRow{}
	for _, code := range groups.Keys(stringLess) {
		acc, _ := in.chart.Lookup(code)
		sums := groups[code]
		debit, credit := sums.Get("debit"), sums.Get("credit")
		if debit.IsZero() && credit.IsZero() {
			continue
		}
		balance := signedBalance(acc.Type, debit, credit)
		switch acc.Type {
		case AccountAsset:
			assets = assets.Add(balance)
		case AccountLiability:
			liabilities = liabilities.Add(balance)
		case AccountEquity:
			equity = equity.Add(balance)
		case AccountRevenue:
			earnings = earnings.Add(balance)
			continue
		case AccountExpense:
			earnings = earnings.Sub(balance)
			continue
		}
		rows = append(rows, BalanceSheetRow{
			Section:     acc.Type,
			AccountCode: acc.Code,
			AccountName: acc.Name,
			Balance:     in.currency.Round(balance),
		})
	}
	if !earnings.IsZero() {
		rows = append(rows, BalanceSheetRow{
			Section:     AccountEquity,
			AccountCode: CurrentEarningsCode,
			AccountName: "Current Earnings",
			Balance:     in.currency.Round(earnings),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return balanceSheetSections[rows[i].Section] < balanceSheetSections[rows[j].Section]
	})

	bs := &BalanceSheet{Rows: rows}
	bs.Summary.TotalAssets = in.currency.Round(assets)
	bs.Summary.TotalLiabilities = in.currency.Round(liabilities)
	bs.Summary.TotalEquity = in.currency.Round(equity.Add(earnings))
	bs.Summary.CurrentEarnings = in.currency.Round(earnings)
	bs.Summary.Difference = bs.Summary.TotalAssets.Sub(bs.Summary.TotalLiabilities.Add(bs.Summary.TotalEquity))
	bs.Summary.Balanced = bs.Summary.Difference.IsZero()
	res.BalanceSheet = bs
	return nil
}
