package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseIdempotencyStore(t *testing.T, store IdempotencyStore) {
	t.Helper()
	ctx := context.Background()

	result, err := store.CheckAndInsert(ctx, "key-1", "booking")
	require.NoError(t, err)
	assert.Empty(t, result)

	result, err = store.CheckAndInsert(ctx, "key-1", "booking")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Empty(t, result, "pending keys carry no result")

	require.NoError(t, store.Complete(ctx, "key-1", "booking", "appt-42"))
	result, err = store.CheckAndInsert(ctx, "key-1", "booking")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Equal(t, "appt-42", result)

	_, err = store.CheckAndInsert(ctx, "key-1", "other")
	require.NoError(t, err, "modules are isolated")

	require.NoError(t, store.Delete(ctx, "key-1", "booking"))
	_, err = store.CheckAndInsert(ctx, "key-1", "booking")
	require.NoError(t, err)

	_, err = store.CheckAndInsert(ctx, "", "booking")
	require.Error(t, err)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	exerciseIdempotencyStore(t, NewMemoryIdempotencyStore())
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdempotencyStore(client, time.Hour)
	exerciseIdempotencyStore(t, store)

	ttl := mr.TTL("idempotency:booking:key-1")
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)
	_, err := store.CheckAndInsert(context.Background(), "key-1", "booking")
	require.NoError(t, err, "keys expire after retention")
}
