package reporting

import (
	"context"
	"testing"
	"time"
)

func cachedResult() *Result {
	return &Result{
		Kind:     KindTrialBalance,
		TenantID: tenantA,
		TrialBalance: &TrialBalance{
			Summary: TrialBalanceSummary{TotalDebits: dec("10"), TotalCredits: dec("10"), Balanced: true},
			Rows:    []TrialBalanceRow{{AccountCode: "1000", Debit: dec("10")}},
		},
		Diagnostics: []Diagnostic{},
	}
}

func TestMemoryCacheRoundTripReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Minute)
	key := CacheKey{TenantID: tenantA, Kind: KindTrialBalance, Token: "x"}
	if err := cache.Set(ctx, key, cachedResult()); err != nil {
		t.Fatalf("set: %v", err)
	}
	first, ok, err := cache.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	first.TrialBalance.Rows[0].AccountCode = "mutated"
	second, _, _ := cache.Get(ctx, key)
	if second.TrialBalance.Rows[0].AccountCode != "1000" {
		t.Fatalf("cache handed out a shared value")
	}
	if !second.TrialBalance.Summary.TotalDebits.Equal(dec("10")) {
		t.Fatalf("unexpected decoded total: %s", second.TrialBalance.Summary.TotalDebits)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }
	key := CacheKey{TenantID: tenantA, Kind: KindLowStock, Token: "x"}
	if err := cache.Set(ctx, key, cachedResult()); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(61 * time.Second)
	if _, ok, _ := cache.Get(ctx, key); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped")
	}
}

func TestMemoryCacheSweepsUnreadExpiredEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(time.Minute)
	cache.now = func() time.Time { return now }
	for _, token := range []string{"2025-01", "2025-02", "2025-03"} {
		key := CacheKey{TenantID: tenantA, Kind: KindTrialBalance, Token: token}
		if err := cache.Set(ctx, key, cachedResult()); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if cache.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", cache.Len())
	}

	now = now.Add(2 * time.Minute)
	fresh := CacheKey{TenantID: tenantB, Kind: KindTrialBalance, Token: "2025-04"}
	if err := cache.Set(ctx, fresh, cachedResult()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected expired windows to be swept on write, got %d entries", cache.Len())
	}
	if _, ok, _ := cache.Get(ctx, fresh); !ok {
		t.Fatalf("fresh entry must survive the sweep")
	}
}

func TestMemoryCacheInvalidateTenant(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Minute)
	keyA := CacheKey{TenantID: tenantA, Kind: KindTrialBalance, Token: "x"}
	keyB := CacheKey{TenantID: tenantB, Kind: KindTrialBalance, Token: "x"}
	_ = cache.Set(ctx, keyA, cachedResult())
	_ = cache.Set(ctx, keyB, cachedResult())

	if err := cache.InvalidateTenant(ctx, tenantA); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, keyA); ok {
		t.Fatalf("tenant A entry survived invalidation")
	}
	if _, ok, _ := cache.Get(ctx, keyB); !ok {
		t.Fatalf("tenant B entry must survive tenant A invalidation")
	}

	// A computation that started before the bump must not be stored.
	if err := cache.Set(ctx, keyA, cachedResult()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, keyA); ok {
		t.Fatalf("stale version was cached")
	}
	version, _ := cache.Version(ctx, tenantA)
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}
