package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, 24, 5*time.Second), mr
}

func TestStore_CheckFirstSeenIsNew(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	result, coid, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)
	require.Equal(t, ResultNew, result)
	require.Equal(t, "BUY_BTCUSDT_1700000000000_ab12cd34", coid)
}

func TestStore_CheckResubmitIsDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	result, coid, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700000001000_ef56gh78")
	require.NoError(t, err)
	require.Equal(t, ResultDuplicate, result)
	require.Equal(t, "BUY_BTCUSDT_1700000000000_ab12cd34", coid, "duplicate must return the original client-order-id")
}

func TestStore_CheckExpiresAfterTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	mr.FastForward(25 * time.Hour)

	result, _, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700009999000_zz99yy88")
	require.NoError(t, err)
	require.Equal(t, ResultNew, result)
}

func TestStore_CheckDedupWithinWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	isDup, err := store.CheckDedup(ctx, "dedup-1")
	require.NoError(t, err)
	require.False(t, isDup)

	isDup, err = store.CheckDedup(ctx, "dedup-1")
	require.NoError(t, err)
	require.True(t, isDup)
}

func TestStore_CheckDedupExpiresAfterWindow(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.CheckDedup(ctx, "dedup-1")
	require.NoError(t, err)

	mr.FastForward(6 * time.Second)

	isDup, err := store.CheckDedup(ctx, "dedup-1")
	require.NoError(t, err)
	require.False(t, isDup)
}

func TestStore_InvalidateFreesKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	require.NoError(t, store.Invalidate(ctx, "key-1"))

	result, _, err := store.Check(ctx, "key-1", "BUY_BTCUSDT_1700000002000_zz99yy88")
	require.NoError(t, err)
	require.Equal(t, ResultNew, result)
}
