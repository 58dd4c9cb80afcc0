package reporting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/nivi333/lavoro-ai-ferri-sub007/testing"
)

const (
	tenantA = "11111111-1111-1111-1111-111111111111"
	tenantB = "22222222-2222-2222-2222-222222222222"
)

// memStore is an in-memory Store. When leaky is set it ignores tenant and
// window arguments and returns every row, which the reader must filter.
type memStore struct {
	mu        sync.Mutex
	tenants   map[string]Tenant
	ledger    []LedgerEntry
	movements []StockMovement
	machines  []MachineLog
	orders    []OrderLine
	products  []Product

	leaky bool
	// gate, when set, blocks every data call until it is closed or the
	// context ends.
	gate  chan struct{}
	calls atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{tenants: map[string]Tenant{
		tenantA: {ID: tenantA, Name: "Ferri Mills", Currency: "USD", Active: true},
		tenantB: {ID: tenantB, Name: "Other Looms", Currency: "USD", Active: true},
	}}
}

func (s *memStore) wait(ctx context.Context) error {
	s.calls.Add(1)
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memStore) Tenant(ctx context.Context, tenantID string) (Tenant, error) {
	if err := ctx.Err(); err != nil {
		return Tenant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return Tenant{}, ErrScopeViolation
	}
	return t, nil
}

func keep(s *memStore, tenant, want string, window Window, date time.Time, dated bool) bool {
	if s.leaky {
		return true
	}
	if tenant != want {
		return false
	}
	return !dated || window.Contains(date)
}

func (s *memStore) LedgerEntries(ctx context.Context, tenantID string, window Window) ([]LedgerEntry, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerEntry
	for _, e := range s.ledger {
		if keep(s, e.TenantID, tenantID, window, e.EntryDate, true) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) StockMovements(ctx context.Context, tenantID string, window Window) ([]StockMovement, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StockMovement
	for _, m := range s.movements {
		if keep(s, m.TenantID, tenantID, window, m.MovementDate, true) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) MachineLogs(ctx context.Context, tenantID string, window Window) ([]MachineLog, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MachineLog
	for _, l := range s.machines {
		if keep(s, l.TenantID, tenantID, window, l.LogDate, true) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) OrderLines(ctx context.Context, tenantID string, window Window) ([]OrderLine, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrderLine
	for _, l := range s.orders {
		if keep(s, l.TenantID, tenantID, window, l.OrderDate, true) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) Products(ctx context.Context, tenantID string) ([]Product, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Product
	for _, p := range s.products {
		if keep(s, p.TenantID, tenantID, Window{}, time.Time{}, false) {
			out = append(out, p)
		}
	}
	return out, nil
}

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return d
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func january(t *testing.T) Window {
	t.Helper()
	w, err := NewWindow(date(t, "2025-01-01"), date(t, "2025-01-31"))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func entry(t *testing.T, id, tenant, day, code, ref, debit, credit string) LedgerEntry {
	t.Helper()
	return LedgerEntry{
		ID:          id,
		TenantID:    tenant,
		EntryDate:   date(t, day),
		AccountCode: code,
		Reference:   ref,
		Source:      SourceJournal,
		Debit:       dec(debit),
		Credit:      dec(credit),
		Active:      true,
	}
}

func movement(t *testing.T, id, tenant, product, day, qty string) StockMovement {
	t.Helper()
	return StockMovement{
		ID:           id,
		TenantID:     tenant,
		ProductID:    product,
		Location:     "MAIN",
		Quantity:     dec(qty),
		MovementDate: date(t, day),
		Active:       true,
	}
}

func newTestEngine(t *testing.T, store Store, cache Cache) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{Store: store, Cache: cache, ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}
