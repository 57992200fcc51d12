// ==============================================================================
// REDIS INTEGRATION - pkg/cache/redis.go
// ==============================================================================
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const receiptPrefix = "webhook:receipt:"

// NewRedisClient connects and pings; callers own Close.
func NewRedisClient(ctx context.Context, url, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// EventReceipts remembers gateway events that reached a terminal outcome.
// It only short-circuits redeliveries; purchase state lives in the ledger store.
type EventReceipts struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventReceipts(client *redis.Client, ttl time.Duration) *EventReceipts {
	return &EventReceipts{client: client, ttl: ttl}
}

// Seen returns the outcome recorded for eventID, if any.
func (r *EventReceipts) Seen(ctx context.Context, eventID string) (string, bool, error) {
	outcome, err := r.client.Get(ctx, receiptPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return outcome, true, nil
}

func (r *EventReceipts) Record(ctx context.Context, eventID, outcome string) error {
	return r.client.Set(ctx, receiptPrefix+eventID, outcome, r.ttl).Err()
}
