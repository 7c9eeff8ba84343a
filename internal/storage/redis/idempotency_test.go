package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Hour, time.Minute), mr
}

func TestIdempotency_FirstRequestOwnsKey(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	resp, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)

	v, err := mr.Get(storeKey("u1", "k1"))
	require.NoError(t, err)
	assert.Equal(t, pendingMarker, v)
	assert.Equal(t, time.Minute, mr.TTL(storeKey("u1", "k1")))
}

func TestIdempotency_ConcurrentDuplicate(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)

	_, err = store.Begin(ctx, "u1", "k1")
	require.ErrorIs(t, err, ErrInProgress)
}

func TestIdempotency_Replay(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)

	body := []byte(`{"orderId":"abc","finalTotal":25}`)
	require.NoError(t, store.Finish(ctx, "u1", "k1", Response{Status: 201, Body: body}))
	assert.Equal(t, time.Hour, mr.TTL(storeKey("u1", "k1")))

	resp, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.JSONEq(t, string(body), string(resp.Body))
}

func TestIdempotency_KeysAreScopedByUser(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)

	resp, err := store.Begin(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestIdempotency_AbortReleases(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, store.Abort(ctx, "u1", "k1"))

	resp, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestIdempotency_PendingExpires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	resp, err := store.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestIdempotency_CorruptRecord(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set(storeKey("u1", "k1"), "{not json"))

	_, err := store.Begin(context.Background(), "u1", "k1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInProgress)
}
