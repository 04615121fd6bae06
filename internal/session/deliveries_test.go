package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeliveryStore(t *testing.T) (*DeliveryStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDeliveryStore(client, time.Hour), s
}

func TestDeliveryClaimIsExclusive(t *testing.T) {
	store, _ := newTestDeliveryStore(t)
	ctx := context.Background()

	first, err := store.Claim(ctx, "delivery-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.Claim(ctx, "delivery-1")
	require.NoError(t, err)
	assert.False(t, second)

	d, found, err := store.Lookup(ctx, "delivery-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, d.Pending)
}

func TestDeliveryStoreAndReplay(t *testing.T) {
	store, _ := newTestDeliveryStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "delivery-2")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, "delivery-2", 200, []byte(`{"received":true}`)))

	d, found, err := store.Lookup(ctx, "delivery-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, d.Pending)
	assert.Equal(t, 200, d.Status)
	assert.JSONEq(t, `{"received":true}`, string(d.Body))
}

func TestDeliveryReleaseAllowsRetry(t *testing.T) {
	store, _ := newTestDeliveryStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "delivery-3")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "delivery-3"))

	_, found, err := store.Lookup(ctx, "delivery-3")
	require.NoError(t, err)
	assert.False(t, found)

	again, err := store.Claim(ctx, "delivery-3")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestDeliveryExpires(t *testing.T) {
	store, s := newTestDeliveryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "delivery-4", 200, []byte(`{}`)))
	s.FastForward(2 * time.Hour)

	_, found, err := store.Lookup(ctx, "delivery-4")
	require.NoError(t, err)
	assert.False(t, found)
}
