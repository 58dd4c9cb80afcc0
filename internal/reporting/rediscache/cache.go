// Package rediscache stores generated reports in Redis under per-tenant
// versioned keys, compressed with zstd, and serialises computation of one
// key across replicas with a distributed lock.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

const (
	keyPrefix = "reports"
	// InvalidateChannel carries the tenant ID of every invalidation.
	InvalidateChannel = "reports.invalidate"

	defaultLockTTL   = 30 * time.Second
	defaultLockWait  = 5 * time.Second
	lockRetryBackoff = 50 * time.Millisecond
)

// Options tunes the cache. Zero values use the defaults.
type Options struct {
	TTL      time.Duration
	LockTTL  time.Duration
	LockWait time.Duration
	Logger   *slog.Logger
}

// Cache implements reporting.Cache and reporting.Locker on Redis.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	lockTTL  time.Duration
	lockWait time.Duration
	locker   *redislock.Client
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	logger   *slog.Logger
}

var (
	_ reporting.Cache  = (*Cache)(nil)
	_ reporting.Locker = (*Cache)(nil)
)

// New constructs the cache around an existing client.
func New(client *redis.Client, opts Options) (*Cache, error) {
	if client == nil {
		return nil, errors.New("rediscache: client required")
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("rediscache: create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("rediscache: create zstd decoder: %w", err)
	}
	c := &Cache{
		client:   client,
		ttl:      opts.TTL,
		lockTTL:  opts.LockTTL,
		lockWait: opts.LockWait,
		locker:   redislock.New(client),
		encoder:  encoder,
		decoder:  decoder,
		logger:   opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = reporting.DefaultCacheTTL
	}
	if c.lockTTL <= 0 {
		c.lockTTL = defaultLockTTL
	}
	if c.lockWait <= 0 {
		c.lockWait = defaultLockWait
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

func versionKey(tenantID string) string {
	return keyPrefix + ":version:" + tenantID
}

func entryKey(key reporting.CacheKey) string {
	return keyPrefix + ":" + key.String()
}

func lockKey(key reporting.CacheKey) string {
	return keyPrefix + ":lock:" + key.String()
}

// Version returns the tenant's data version; a missing key is version zero.
func (c *Cache) Version(ctx context.Context, tenantID string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rediscache: version: %w", err)
	}
	return ver, nil
}

// Get loads and decompresses a cached report.
func (c *Cache) Get(ctx context.Context, key reporting.CacheKey) (*reporting.Result, bool, error) {
	raw, err := c.client.Get(ctx, entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: get: %w", err)
	}
	payload, err := c.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: decompress: %w", err)
	}
	res, err := reporting.DecodeResult(payload)
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: decode: %w", err)
	}
	return res, true, nil
}

// Set stores a compressed report for the cache TTL.
func (c *Cache) Set(ctx context.Context, key reporting.CacheKey, res *reporting.Result) error {
	payload, err := reporting.EncodeResult(res)
	if err != nil {
		return fmt.Errorf("rediscache: encode: %w", err)
	}
	compressed := c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/4))
	if err := c.client.Set(ctx, entryKey(key), compressed, c.ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set: %w", err)
	}
	return nil
}

// InvalidateTenant bumps the tenant version, orphaning every cached entry,
// and announces the tenant on InvalidateChannel.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) error {
	if err := c.client.Incr(ctx, versionKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("rediscache: bump version: %w", err)
	}
	return Publish(ctx, c.client, tenantID)
}

// Lock obtains the compute lock for key, waiting up to the configured lock
// wait. redislock.ErrNotObtained is returned when another replica holds it.
func (c *Cache) Lock(ctx context.Context, key reporting.CacheKey) (func(), error) {
	retries := int(c.lockWait / lockRetryBackoff)
	lock, err := c.locker.Obtain(ctx, lockKey(key), c.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryBackoff), retries),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.logger.Warn("rediscache: release lock failed", slog.String("key", key.String()), slog.Any("error", err))
		}
	}, nil
}
