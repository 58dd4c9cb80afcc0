package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultSlowThreshold = 2 * time.Second

// EngineConfig wires the engine's collaborators. Store is required; every
// other field has a default.
type EngineConfig struct {
	Store  Store
	Chart  *Chart
	Cache  Cache
	Locker Locker
	Logger *slog.Logger

	ReadTimeout      time.Duration
	CriticalFraction decimal.NullDecimal
	ShardSize        int
	SlowThreshold    time.Duration
	Now              func() time.Time
}

// Engine generates reports. It holds no per-request state; the cache is the
// only shared mutable resource.
type Engine struct {
	reader    *ScopedReader
	chart     *Chart
	cache     Cache
	locker    Locker
	logger    *slog.Logger
	fraction  decimal.Decimal
	shardSize int
	slow      time.Duration
	now       func() time.Time
	group     singleflight.Group
}

// NewEngine validates cfg and constructs an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("reporting: store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chart := cfg.Chart
	if chart == nil {
		chart = DefaultChart()
	}
	fraction := DefaultCriticalFraction
	if cfg.CriticalFraction.Valid {
		if err := checkFraction(cfg.CriticalFraction.Decimal); err != nil {
			return nil, err
		}
		fraction = cfg.CriticalFraction.Decimal
	}
	shard := cfg.ShardSize
	if shard <= 0 {
		shard = defaultShardSize
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		reader:    NewScopedReader(cfg.Store, cfg.ReadTimeout, logger),
		chart:     chart,
		cache:     cfg.Cache,
		locker:    cfg.Locker,
		logger:    logger,
		fraction:  fraction,
		shardSize: shard,
		slow:      slow,
		now:       now,
	}, nil
}

func checkFraction(f decimal.Decimal) error {
	if f.IsNegative() || f.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: critical fraction %s outside [0, 1]", ErrInvalidOptions, f)
	}
	return nil
}

// normalized is a validated request.
type normalized struct {
	tenantID string
	kind     Kind
	window   Window
	asOf     time.Time
	options  Options
	fraction decimal.Decimal
}

func (n normalized) key(version int64) CacheKey {
	return CacheKey{
		TenantID: n.tenantID,
		Kind:     n.kind,
		Token:    n.window.String() + ":" + n.options.token(),
		Version:  version,
	}
}

// canonicalTenantID trims raw and rewrites UUIDs in any accepted spelling
// (upper case, braces, urn prefix) to the lower-case hyphenated form stores
// return. Other IDs are opaque and kept as given.
func canonicalTenantID(raw string) string {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return id.String()
	}
	return raw
}

// normalize rejects invalid requests before any data is read.
func (e *Engine) normalize(req Request) (normalized, error) {
	n := normalized{tenantID: canonicalTenantID(req.TenantID), options: req.Options, fraction: e.fraction}
	if n.tenantID == "" {
		return n, fmt.Errorf("%w: tenant id required", ErrScopeViolation)
	}
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return n, err
	}
	n.kind = kind

	if kind.AsOf() {
		asOf := req.AsOf
		if asOf.IsZero() {
			asOf = req.Window.To
		}
		if asOf.IsZero() {
			return n, fmt.Errorf("%w: as-of date required for %s", ErrEmptyWindow, kind)
		}
		n.window = AsOfWindow(asOf)
		n.asOf = n.window.To
	} else {
		w, err := NewWindow(req.Window.From, req.Window.To)
		if err != nil {
			return n, err
		}
		n.window = w
	}

	if req.Options.TopN < 0 {
		return n, fmt.Errorf("%w: top_n must not be negative", ErrInvalidOptions)
	}
	if cf := req.Options.CriticalFraction; cf != nil {
		if err := checkFraction(*cf); err != nil {
			return n, err
		}
		n.fraction = *cf
	}
	return n, nil
}

// Generate produces the report described by req. Fatal conditions return an
// error; invariant violations are attached to the result as diagnostics.
// Results may be shared between coalesced callers and must not be mutated.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "reporting.generate", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("report.kind", string(req.Kind)),
	))
	defer span.End()

	res, err := e.generate(ctx, req)
	if err != nil {
		recordFailure(req.Kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (e *Engine) generate(ctx context.Context, req Request) (*Result, error) {
	n, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var version int64
	if e.cache != nil {
		version, err = e.cache.Version(ctx, n.tenantID)
		if err != nil {
			e.logger.Warn("reporting: cache version lookup failed", slog.String("tenant_id", n.tenantID), slog.Any("error", err))
			return e.compute(ctx, n)
		}
		key := n.key(version)
		if res, ok := e.cacheGet(ctx, key); ok {
			recordCacheHit(n.kind)
			return res, nil
		}
		recordCacheMiss(n.kind)
	}
	return e.coalesce(ctx, n, n.key(version))
}

// coalesce runs at most one computation per key. A waiter whose leader was
// cancelled retries once as leader when its own context is still alive.
func (e *Engine) coalesce(ctx context.Context, n normalized, key CacheKey) (*Result, error) {
	for attempt := 0; ; attempt++ {
		ch := e.group.DoChan(key.String(), func() (interface{}, error) {
			return e.computeAndStore(ctx, n, key)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-ch:
			if out.Shared {
				recordCoalesced(n.kind)
			}
			if out.Err != nil {
				if attempt == 0 && isContextErr(out.Err) && ctx.Err() == nil {
					continue
				}
				return nil, out.Err
			}
			return out.Val.(*Result), nil
		}
	}
}

func (e *Engine) computeAndStore(ctx context.Context, n normalized, key CacheKey) (*Result, error) {
	if e.cache == nil {
		return e.compute(ctx, n)
	}
	if e.locker != nil {
		release, err := e.locker.Lock(ctx, key)
		if err != nil {
			if isContextErr(err) {
				return nil, err
			}
			e.logger.Debug("reporting: compute lock unavailable", slog.String("key", key.String()), slog.Any("error", err))
		} else {
			defer release()
			if res, ok := e.cacheGet(ctx, key); ok {
				return res, nil
			}
		}
	}

	res, err := e.compute(ctx, n)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := e.cache.Set(ctx, key, res); err != nil {
		e.logger.Warn("reporting: cache store failed", slog.String("key", key.String()), slog.Any("error", err))
	}
	return res, nil
}

func (e *Engine) cacheGet(ctx context.Context, key CacheKey) (*Result, bool) {
	res, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("reporting: cache read failed", slog.String("key", key.String()), slog.Any("error", err))
		return nil, false
	}
	return res, ok
}

// compute reads, aggregates, builds and validates one report.
func (e *Engine) compute(ctx context.Context, n normalized) (*Result, error) {
	start := e.now()
	build, err := lookupBuilder(n.kind)
	if err != nil {
		return nil, err
	}
	tenant, err := e.reader.Tenant(ctx, n.tenantID)
	if err != nil {
		return nil, err
	}
	currency := ResolveCurrency(tenant.Currency)

	res := &Result{
		ID:          uuid.New(),
		Kind:        n.kind,
		TenantID:    tenant.ID,
		Currency:    currency,
		Window:      n.window,
		GeneratedAt: e.now().UTC(),
		Diagnostics: []Diagnostic{},
	}
	if n.kind.AsOf() {
		asOf := n.asOf
		res.AsOf = &asOf
	}
	in := buildInput{
		tenant:    tenant,
		currency:  currency,
		window:    n.window,
		asOf:      n.asOf,
		options:   n.options,
		fraction:  n.fraction,
		chart:     e.chart,
		reader:    e.reader,
		shardSize: e.shardSize,
	}
	if err := build(ctx, in, res); err != nil {
		return nil, err
	}
	res.Diagnostics = append(res.Diagnostics, Validate(res)...)

	elapsed := e.now().Sub(start)
	observeBuildDuration(n.kind, elapsed)
	recordDiagnostics(n.kind, res.Diagnostics)
	if elapsed > e.slow {
		e.logger.Warn("reporting: slow report",
			slog.String("tenant_id", n.tenantID),
			slog.String("kind", string(n.kind)),
			slog.String("window", n.window.String()),
			slog.Duration("elapsed", elapsed))
	}
	if len(res.Diagnostics) > 0 {
		e.logger.Info("reporting: report has diagnostics",
			slog.String("tenant_id", n.tenantID),
			slog.String("kind", string(n.kind)),
			slog.Int("count", len(res.Diagnostics)))
	}
	return res, nil
}

// GenerateBatch runs several requests concurrently and returns the results in
// request order. The first failure cancels the rest.
func (e *Engine) GenerateBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := e.Generate(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", req.Kind, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Invalidate evicts every cached report of the tenant.
func (e *Engine) Invalidate(ctx context.Context, tenantID string) error {
	tenantID = canonicalTenantID(tenantID)
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id required", ErrScopeViolation)
	}
	if e.cache == nil {
		return nil
	}
	if err := e.cache.InvalidateTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("reporting: invalidate %s: %w", tenantID, err)
	}
	e.logger.Debug("reporting: cache invalidated", slog.String("tenant_id", tenantID))
	return nil
}
