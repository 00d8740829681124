package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// OHLCVCache caches raw candle windows by (symbol, timeframe) with a
// short TTL (spec.md §4.7: "short TTL (≤ 1 bar period) to support
// multi-agent re-use within a single tick"). Adapted from the
// teacher's RedisPriceCache — same struct shape, SETNX-free Get/Set
// pair, graceful degradation to a cache miss on any Redis error.
type OHLCVCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewOHLCVCache builds a cache bound to a Redis client. A nil client
// is accepted so the Market-Data Service can run without Redis in
// backtest mode; every method becomes a permanent cache miss.
func NewOHLCVCache(client *redis.Client, log zerolog.Logger) *OHLCVCache {
	return &OHLCVCache{client: client, log: log.With().Str("component", "ohlcv_cache").Logger()}
}

func (c *OHLCVCache) key(symbol, timeframe string) string {
	return fmt.Sprintf("market:ohlcv:%s:%s", symbol, timeframe)
}

// Get returns the cached window and true on a hit, or a zero value and
// false on any miss or error.
func (c *OHLCVCache) Get(ctx context.Context, symbol, timeframe string) (domain.OHLCVWindow, bool) {
	if c.client == nil {
		return domain.OHLCVWindow{}, false
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Get(cacheCtx, c.key(symbol, timeframe)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("ohlcv cache get error, treating as miss")
		}
		return domain.OHLCVWindow{}, false
	}

	var window domain.OHLCVWindow
	if err := json.Unmarshal([]byte(raw), &window); err != nil {
		c.log.Warn().Err(err).Msg("failed to unmarshal cached ohlcv window")
		return domain.OHLCVWindow{}, false
	}
	return window, true
}

// Set stores a window with the given TTL, which the caller derives
// from the timeframe's bar period (one bar, per spec.md §4.7).
func (c *OHLCVCache) Set(ctx context.Context, symbol string, window domain.OHLCVWindow, ttl time.Duration) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(window)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal ohlcv window for cache")
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, c.key(symbol, window.Timeframe), data, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", window.Timeframe).Msg("failed to cache ohlcv window")
	}
}

// BarPeriod maps a timeframe string to its duration, used as the cache
// TTL for that timeframe's window. Unknown timeframes map to one minute.
func BarPeriod(timeframe string) time.Duration {
	switch timeframe {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	default:
		return time.Minute
	}
}
