package perf

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

const perfTenant = "33333333-3333-3333-3333-333333333333"

// syntheticStore serves a deterministic month of textile activity.
type syntheticStore struct {
	ledger    []reporting.LedgerEntry
	movements []reporting.StockMovement
	products  []reporting.Product
}

func newSyntheticStore(documents, products int) *syntheticStore {
	rng := rand.New(rand.NewSource(42))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &syntheticStore{}
	for i := 0; i < documents; i++ {
		amount := decimal.New(int64(rng.Intn(100000)+1), -2)
		day := start.AddDate(0, 0, rng.Intn(31))
		ref := fmt.Sprintf("INV-%06d", i)
		s.ledger = append(s.ledger,
			reporting.LedgerEntry{ID: ref + "-d", TenantID: perfTenant, EntryDate: day, AccountCode: "1100", Reference: ref, Source: reporting.SourceInvoice, Debit: amount, Active: true},
			reporting.LedgerEntry{ID: ref + "-c", TenantID: perfTenant, EntryDate: day, AccountCode: "4000", Reference: ref, Source: reporting.SourceInvoice, Credit: amount, Active: true},
		)
	}
	for p := 0; p < products; p++ {
		id := fmt.Sprintf("YARN-%04d", p)
		s.products = append(s.products, reporting.Product{
			ID: id, TenantID: perfTenant, Name: id, SKU: id,
			UnitPrice: decimal.New(int64(rng.Intn(5000)+100), -2), ReorderLevel: decimal.NewFromInt(50), Active: true,
		})
		for m := 0; m < 20; m++ {
			qty := int64(rng.Intn(40) + 1)
			if m%3 == 0 {
				qty = -qty
			}
			s.movements = append(s.movements, reporting.StockMovement{
				ID: fmt.Sprintf("%s-%d", id, m), TenantID: perfTenant, ProductID: id,
				Quantity: decimal.NewFromInt(qty), MovementDate: start.AddDate(0, 0, rng.Intn(31)), Active: true,
			})
		}
	}
	return s
}

func (s *syntheticStore) Tenant(_ context.Context, tenantID string) (reporting.Tenant, error) {
	if tenantID != perfTenant {
		return reporting.Tenant{}, reporting.ErrScopeViolation
	}
	return reporting.Tenant{ID: perfTenant, Name: "Perf Mills", Currency: "USD", Active: true}, nil
}

func (s *syntheticStore) LedgerEntries(context.Context, string, reporting.Window) ([]reporting.LedgerEntry, error) {
	return s.ledger, nil
}

func (s *syntheticStore) StockMovements(context.Context, string, reporting.Window) ([]reporting.StockMovement, error) {
	return s.movements, nil
}

func (s *syntheticStore) MachineLogs(context.Context, string, reporting.Window) ([]reporting.MachineLog, error) {
	return nil, nil
}

func (s *syntheticStore) OrderLines(context.Context, string, reporting.Window) ([]reporting.OrderLine, error) {
	return nil, nil
}

func (s *syntheticStore) Products(context.Context, string) ([]reporting.Product, error) {
	return s.products, nil
}
