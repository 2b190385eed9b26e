// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Deduper filters inbound messages the webhook has already delivered.
// Meta redelivers webhooks on slow acknowledgements, so the same message
// id can arrive more than once across replicas.
type Deduper interface {
	// Seen atomically records the message id and reports whether it was
	// already present.
	Seen(ctx context.Context, tenantID, externalID string) (bool, error)
}

// DefaultDedupTTL bounds how long delivered message ids are remembered.
const DefaultDedupTTL = 24 * time.Hour

// RedisDeduper implements Deduper with SET NX over a shared Redis, so
// deduplication holds across replicas.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper over the given client. A non-positive
// ttl falls back to DefaultDedupTTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Seen records the message id and reports whether it was already present.
func (d *RedisDeduper) Seen(ctx context.Context, tenantID, externalID string) (bool, error) {
	key := fmt.Sprintf("inbound:%s:%s", tenantID, externalID)
	set, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check inbound dedup: %w", err)
	}
	return !set, nil
}

// Ensure RedisDeduper implements Deduper.
var _ Deduper = (*RedisDeduper)(nil)
