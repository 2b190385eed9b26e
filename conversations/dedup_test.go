// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversations

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, ttl), srv
}

func TestDeduperSeen(t *testing.T) {
	dedup, _ := newTestDeduper(t, time.Hour)

	seen, err := dedup.Seen(context.Background(), "t1", "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen, "first delivery is new")

	seen, err = dedup.Seen(context.Background(), "t1", "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen, "redelivery is a duplicate")
}

func TestDeduperScopesByTenant(t *testing.T) {
	dedup, _ := newTestDeduper(t, time.Hour)

	_, err := dedup.Seen(context.Background(), "t1", "wamid.1")
	require.NoError(t, err)

	seen, err := dedup.Seen(context.Background(), "t2", "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen, "the same message id under another tenant is distinct")
}

func TestDeduperEntriesExpire(t *testing.T) {
	dedup, srv := newTestDeduper(t, time.Minute)

	_, err := dedup.Seen(context.Background(), "t1", "wamid.1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, srv.TTL("inbound:t1:wamid.1"))

	srv.FastForward(2 * time.Minute)

	seen, err := dedup.Seen(context.Background(), "t1", "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen, "expired entries read as new")
}

func TestDeduperDefaultTTL(t *testing.T) {
	dedup, srv := newTestDeduper(t, 0)

	_, err := dedup.Seen(context.Background(), "t1", "wamid.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultDedupTTL, srv.TTL("inbound:t1:wamid.1"))
}

func TestDeduperSurfacesBackendErrors(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	dedup := NewRedisDeduper(client, time.Hour)

	srv.Close()

	_, err := dedup.Seen(context.Background(), "t1", "wamid.1")
	assert.Error(t, err)
}
