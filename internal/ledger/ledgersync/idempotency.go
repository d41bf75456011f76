package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

const (
	keyPending = "pending"
	keyDone    = "done"
)

// IdempotencyGuard lets an offline client resubmit a batch safely: a key is claimed before
// the transaction, marked done after commit and released if the transaction fails.
type IdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyGuard constructs a guard whose keys expire after ttl.
func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{client: client, ttl: ttl}
}

// SyncKey builds the redis key for a client supplied idempotency key.
func SyncKey(key string) string {
	return fmt.Sprintf("ledger:sync:%s", key)
}

// Begin claims key or reports shared.ErrAlreadyProcessed.
func (g *IdempotencyGuard) Begin(ctx context.Context, key string) error {
	ok, err := g.client.SetNX(ctx, SyncKey(key), keyPending, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: claim idempotency key: %v", shared.ErrTransient, err)
	}
	if ok {
		return nil
	}
	state, err := g.client.Get(ctx, SyncKey(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: read idempotency key: %v", shared.ErrTransient, err)
	}
	if state == keyPending {
		return fmt.Errorf("%w: key %s is in flight", shared.ErrAlreadyProcessed, key)
	}
	return fmt.Errorf("%w: key %s", shared.ErrAlreadyProcessed, key)
}

// Complete marks key as committed.
func (g *IdempotencyGuard) Complete(ctx context.Context, key string) error {
	return g.client.Set(ctx, SyncKey(key), keyDone, g.ttl).Err()
}

// Abort releases key so the batch can be retried.
func (g *IdempotencyGuard) Abort(ctx context.Context, key string) error {
	return g.client.Del(ctx, SyncKey(key)).Err()
}
