package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// cashDocument collects the postings of one reference inside the window.
type cashDocument struct {
	reference string
	date      time.Time
	hasCash   bool
	counter   *Account
}

func (d *cashDocument) observe(e classifiedEntry) {
	if d.date.IsZero() || e.EntryDate.Before(d.date) {
		d.date = day(e.EntryDate)
	}
	if e.Account.IsCash() {
		d.hasCash = true
		return
	}
	if d.counter == nil || e.Account.Code < d.counter.Code {
		acc := e.Account
		d.counter = &acc
	}
}

var cashMeasure = Sum("cash", func(e classifiedEntry) decimal.Decimal {
	if !e.Account.IsCash() {
		return decimal.Zero
	}
	return e.Debit.Sub(e.Credit)
})

// buildCashFlow uses the direct method: each source document's net cash
// movement is classified by its lowest-coded non-cash account. Documents
// that touch only cash accounts are transfers and stay out of the three
// activity totals.
func buildCashFlow(ctx context.Context, in buildInput, res *Result) error {
	entries, diags, err := classifiedLedger(ctx, in, in.window.Through())
	if err != nil {
		return err
	}
	res.Diagnostics = append(res.Diagnostics, diags...)

	var prior, current []classifiedEntry
	for _, e := range entries {
		if in.window.Before(e.EntryDate) {
			prior = append(prior, e)
			continue
		}
		current = append(current, e)
	}

	opening := Aggregate(prior, func(classifiedEntry) struct{} { return struct{}{} }, cashMeasure).Total().Get("cash")
	byRef, err := AggregateParallel(ctx, current, in.shardSize, classifiedEntry.ReferenceKey, cashMeasure)
	if err != nil {
		return err
	}

	docs := make(map[string]*cashDocument, len(byRef))
	for _, e := range current {
		ref := e.ReferenceKey()
		doc, ok := docs[ref]
		if !ok {
			doc = &cashDocument{reference: ref}
			docs[ref] = doc
		}
		doc.observe(e)
	}

	cf := &CashFlow{Rows: []CashFlowRow{}}
	var operating, investing, financing, transfers decimal.Decimal
	for ref, doc := range docs {
		if !doc.hasCash {
			continue
		}
		amount := byRef[ref].Get("cash")
		if doc.counter == nil {
			transfers = transfers.Add(amount)
			continue
		}
		category := doc.counter.cashFlowCategory()
		switch category {
		case CashFlowInvesting:
			investing = investing.Add(amount)
		case CashFlowFinancing:
			financing = financing.Add(amount)
		default:
			operating = operating.Add(amount)
		}
		cf.Rows = append(cf.Rows, CashFlowRow{
			Reference:      ref,
			Date:           doc.date,
			Category:       category,
			CounterAccount: doc.counter.Code,
			Amount:         in.currency.Round(amount),
		})
	}
	sort.Slice(cf.Rows, func(i, j int) bool {
		if !cf.Rows[i].Date.Equal(cf.Rows[j].Date) {
			return cf.Rows[i].Date.Before(cf.Rows[j].Date)
		}
		return cf.Rows[i].Reference < cf.Rows[j].Reference
	})

	net := operating.Add(investing).Add(financing)
	ledgerClosing := opening.Add(byRef.Total().Get("cash"))
	cf.Summary = CashFlowSummary{
		OpeningCash:       in.currency.Round(opening),
		Operating:         in.currency.Round(operating),
		Investing:         in.currency.Round(investing),
		Financing:         in.currency.Round(financing),
		Transfers:         in.currency.Round(transfers),
		NetChange:         in.currency.Round(net),
		ClosingCash:       in.currency.Round(opening.Add(net)),
		LedgerClosingCash: in.currency.Round(ledgerClosing),
	}
	res.CashFlow = cf
	return nil
}
