package rediscache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nivi333/lavoro-ai-ferri-sub007/internal/reporting"
)

// Publish announces an invalidation of tenantID to every replica.
func Publish(ctx context.Context, client *redis.Client, tenantID string) error {
	if err := client.Publish(ctx, InvalidateChannel, tenantID).Err(); err != nil {
		return fmt.Errorf("rediscache: publish invalidation: %w", err)
	}
	return nil
}

// Broadcast wraps a process-local cache so invalidations also reach the
// other replicas through InvalidateChannel.
type Broadcast struct {
	reporting.Cache
	client *redis.Client
}

// NewBroadcast wraps local.
func NewBroadcast(local reporting.Cache, client *redis.Client) *Broadcast {
	return &Broadcast{Cache: local, client: client}
}

// InvalidateTenant evicts locally, then publishes.
func (b *Broadcast) InvalidateTenant(ctx context.Context, tenantID string) error {
	if err := b.Cache.InvalidateTenant(ctx, tenantID); err != nil {
		return err
	}
	return Publish(ctx, b.client, tenantID)
}

// ListenForInvalidation subscribes to InvalidateChannel and evicts each
// announced tenant from local until ctx ends. The subscription is confirmed
// before returning.
func ListenForInvalidation(ctx context.Context, client *redis.Client, local reporting.Cache, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := client.Subscribe(ctx, InvalidateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("rediscache: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == "" {
					continue
				}
				if err := local.InvalidateTenant(ctx, msg.Payload); err != nil {
					logger.Warn("rediscache: local invalidation failed",
						slog.String("tenant_id", msg.Payload), slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}
