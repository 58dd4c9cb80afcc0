package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached report may be.
const DefaultCacheTTL = 60 * time.Second

// CacheKey identifies one memoised report. Version is the tenant's data
// version at lookup time; invalidation bumps it so older entries are never
// served again.
type CacheKey struct {
	TenantID string
	Kind     Kind
	Token    string
	Version  int64
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s:v%d", k.TenantID, k.Kind, k.Token, k.Version)
}

// Cache memoises results per tenant, parameters and data version.
type Cache interface {
	Version(ctx context.Context, tenantID string) (int64, error)
	Get(ctx context.Context, key CacheKey) (*Result, bool, error)
	Set(ctx context.Context, key CacheKey, res *Result) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// Locker serialises computation of one key across processes. The returned
// release func must be called once the result is stored.
type Locker interface {
	Lock(ctx context.Context, key CacheKey) (release func(), err error)
}

// EncodeResult serialises a result for caching.
func EncodeResult(res *Result) ([]byte, error) {
	return json.Marshal(res)
}

// DecodeResult restores a cached result.
func DecodeResult(raw []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Payloads are stored encoded so every
// hit hands out an independent copy.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	entries   map[string]map[CacheKey]memoryEntry
	versions  map[string]int64
	nextSweep time.Time
}

// NewMemoryCache constructs a memory cache. A non-positive ttl uses the default.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]map[CacheKey]memoryEntry),
		versions: make(map[string]int64),
	}
}

// Version returns the tenant's current data version.
func (c *MemoryCache) Version(_ context.Context, tenantID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[tenantID], nil
}

// Get returns a fresh copy of a live entry.
func (c *MemoryCache) Get(_ context.Context, key CacheKey) (*Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key.TenantID][key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key.TenantID][key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries[key.TenantID], key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	res, err := DecodeResult(entry.payload)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Set stores res unless the key's version is already superseded.
func (c *MemoryCache) Set(_ context.Context, key CacheKey, res *Result) error {
	payload, err := EncodeResult(res)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
		c.nextSweep = now.Add(c.ttl)
	}
	if key.Version != c.versions[key.TenantID] {
		return nil
	}
	bucket := c.entries[key.TenantID]
	if bucket == nil {
		bucket = make(map[CacheKey]memoryEntry)
		c.entries[key.TenantID] = bucket
	}
	bucket[key] = memoryEntry{payload: payload, expiresAt: now.Add(c.ttl)}
	return nil
}

// sweepLocked drops expired entries and empty tenant buckets. Writers run it
// at most once per ttl, so keys that are never read again still go away.
func (c *MemoryCache) sweepLocked(now time.Time) {
	for tenantID, bucket := range c.entries {
		for key, entry := range bucket {
			if !now.Before(entry.expiresAt) {
				delete(bucket, key)
			}
		}
		if len(bucket) == 0 {
			delete(c.entries, tenantID)
		}
	}
}

// InvalidateTenant bumps the tenant version and drops its entries.
func (c *MemoryCache) InvalidateTenant(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[tenantID]++
	delete(c.entries, tenantID)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
