package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

func newTestOHLCVCache(t *testing.T) *OHLCVCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewOHLCVCache(client, zerolog.Nop())
}

func TestOHLCVCache_MissThenHit(t *testing.T) {
	cache := newTestOHLCVCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "BTCUSDT", "5m")
	require.False(t, ok)

	window := domain.OHLCVWindow{Timeframe: "5m", Candles: []domain.Candle{{Close: 50000}}}
	cache.Set(ctx, "BTCUSDT", window, time.Minute)

	got, ok := cache.Get(ctx, "BTCUSDT", "5m")
	require.True(t, ok)
	require.Len(t, got.Candles, 1)
	require.Equal(t, 50000.0, got.Candles[0].Close)
}

func TestOHLCVCache_NilClientAlwaysMisses(t *testing.T) {
	cache := NewOHLCVCache(nil, zerolog.Nop())
	_, ok := cache.Get(context.Background(), "BTCUSDT", "5m")
	require.False(t, ok)
}

func TestBarPeriod_MapsKnownTimeframes(t *testing.T) {
	require.Equal(t, 5*time.Minute, BarPeriod("5m"))
	require.Equal(t, time.Hour, BarPeriod("1h"))
	require.Equal(t, 4*time.Hour, BarPeriod("4h"))
}
