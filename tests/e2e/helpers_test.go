// Package e2e exercises the trading engine end to end: Market-Data
// Service -> Decision Coordinator -> Risk Gateway -> Execution
// Adapter, wired the same way cmd/orchestrator assembles them, against
// miniredis/in-process fakes instead of live exchanges.
package e2e

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// fakeCandleFetcher synthesises a mildly trending OHLCV series for any
// symbol/timeframe so the Market-Data Service and its indicators have
// enough history to compute without reaching a real exchange.
type fakeCandleFetcher struct {
	basePrice float64
	trend     float64 // per-candle drift, positive for an uptrend
}

func (f *fakeCandleFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	candles := make([]domain.Candle, limit)
	price := f.basePrice
	start := time.Now().Add(-time.Duration(limit) * time.Minute)
	for i := 0; i < limit; i++ {
		price += f.trend
		candles[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     price,
			High:     price * 1.002,
			Low:      price * 0.998,
			Close:    price,
			Volume:   100 + float64(i%5),
		}
	}
	return candles, nil
}

func (f *fakeCandleFetcher) FetchOrderBookTop(ctx context.Context, symbol string, depth int) (domain.OrderBookTop, error) {
	return domain.OrderBookTop{
		Bids: []domain.OrderBookLevel{{Price: f.basePrice * 0.999, Size: 10}},
		Asks: []domain.OrderBookLevel{{Price: f.basePrice * 1.001, Size: 10}},
	}, nil
}

func (f *fakeCandleFetcher) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (f *fakeCandleFetcher) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

// liveBarSource backs adapter.Simulated; it advances one bar per tick
// and is also the resilience.OrderStore the hanging-order sweeper
// tests query, tracking orders by client order ID.
type liveBarSource struct {
	index int64
	bars  map[string]domain.Candle
}

func newLiveBarSource() *liveBarSource { return &liveBarSource{bars: make(map[string]domain.Candle)} }

func (l *liveBarSource) CurrentBarIndex() int64 { return l.index }

func (l *liveBarSource) CurrentBar(symbol string) (domain.Candle, bool) {
	c, ok := l.bars[symbol]
	return c, ok
}

func (l *liveBarSource) setBar(symbol string, candle domain.Candle) { l.bars[symbol] = candle }

func (l *liveBarSource) nextTick() { l.index++ }

// recordingAuditStore satisfies risk.AuditStore, keeping every append
// so tests can assert on rejected/approved order traces.
type recordingAuditStore struct {
	records []domain.AuditRecord
}

func (r *recordingAuditStore) Append(ctx context.Context, record domain.AuditRecord) error {
	r.records = append(r.records, record)
	return nil
}

// noopBreakerStore satisfies breaker.Store without touching Postgres;
// the e2e suite only cares about in-memory breaker transitions.
type noopBreakerStore struct{}

func (noopBreakerStore) Save(ctx context.Context, state domain.CircuitBreakerState) error { return nil }
func (noopBreakerStore) LoadAll(ctx context.Context) ([]domain.CircuitBreakerState, error) {
	return nil, nil
}

func symbolAccount(equity, available float64) domain.AccountState {
	return domain.AccountState{
		TotalEquity:      equity,
		AvailableBalance: available,
		MarginBalance:    available,
		Exposure:         map[string]float64{},
	}
}

func mustSymbol(i int) string {
	return fmt.Sprintf("SIM%dUSDT", i)
}
