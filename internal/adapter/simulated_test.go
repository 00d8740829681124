package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/apperr"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

type fakeBarSource struct {
	idx int64
	bar domain.Candle
}

func (f *fakeBarSource) CurrentBarIndex() int64 { return f.idx }
func (f *fakeBarSource) CurrentBar(symbol string) (domain.Candle, bool) {
	return f.bar, true
}

func testFees() config.FeeConfig {
	return config.FeeConfig{Maker: 0.001, Taker: 0.001, BaseSlippage: 0.0005, ImpactCoef: 0.0001, MaxSlippage: 0.01}
}

func noLatency() LatencyModel {
	return LatencyModel{MinDelay: 0, MaxDelay: 1 * time.Millisecond}
}

func TestSimulated_CreateOrder_FillsAtCloseWithSlippage(t *testing.T) {
	bars := &fakeBarSource{idx: 10, bar: domain.Candle{Close: 50000, Volume: 100}}
	s := NewSimulated(testFees(), bars, noLatency(), zerolog.Nop())

	order, err := s.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.1, BarIndex: 10,
	}, "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, order.Status)

	require.Eventually(t, func() bool {
		got, _ := s.GetOrder(context.Background(), order.OrderID)
		return got.Status == domain.StatusFilled
	}, time.Second, 5*time.Millisecond)

	filled, err := s.GetOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Greater(t, filled.AvgFillPrice, 50000.0, "buy fill should slip upward")
	assert.Greater(t, filled.Fee, 0.0)
}

func TestSimulated_CreateOrder_RejectsLookAhead(t *testing.T) {
	bars := &fakeBarSource{idx: 5, bar: domain.Candle{Close: 50000, Volume: 100}}
	s := NewSimulated(testFees(), bars, noLatency(), zerolog.Nop())

	_, err := s.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.1, BarIndex: 6,
	}, "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.Error(t, err)
	code, ok := apperr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.RiskCheckFailed, code)
}

func TestSimulated_CreateOrder_IsIdempotentOnClientOrderID(t *testing.T) {
	bars := &fakeBarSource{idx: 10, bar: domain.Candle{Close: 50000, Volume: 100}}
	s := NewSimulated(testFees(), bars, noLatency(), zerolog.Nop())
	req := domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.1, BarIndex: 10}

	first, err := s.CreateOrder(context.Background(), req, "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	second, err := s.CreateOrder(context.Background(), req, "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID, "resubmit with the same client-order-id must return the original order")
}

func TestSimulated_CancelOrder_FreezesTerminalOrder(t *testing.T) {
	bars := &fakeBarSource{idx: 10, bar: domain.Candle{Close: 50000, Volume: 100}}
	s := NewSimulated(testFees(), bars, noLatency(), zerolog.Nop())

	order, err := s.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.1, BarIndex: 10,
	}, "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := s.GetOrder(context.Background(), order.OrderID)
		return got.Status == domain.StatusFilled
	}, time.Second, 5*time.Millisecond)

	cancelled, err := s.CancelOrder(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, cancelled.Status, "a terminal order must not be mutated by cancel")
}

func TestSimulated_StopOrder_FillsOnlyWhenCrossed(t *testing.T) {
	bars := &fakeBarSource{idx: 1, bar: domain.Candle{Close: 50000, Low: 49000, High: 51000, Volume: 100}}
	s := NewSimulated(testFees(), bars, noLatency(), zerolog.Nop())

	order, err := s.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideSell, Type: domain.OrderTypeStop, Quantity: 0.1, StopPrice: 48000, BarIndex: 1,
	}, "CLOSE_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := s.GetOrder(context.Background(), order.OrderID)
		return got.Status == domain.StatusOpen
	}, time.Second, 5*time.Millisecond, "stop below the bar's low must not fill")
}

func TestSimulated_QueryAndCancelByClientOrderID(t *testing.T) {
	bars := &fakeBarSource{idx: 10, bar: domain.Candle{Close: 50000, Volume: 100}}
	s := NewSimulated(testFees(), bars, noLatency(), zerolog.Nop())

	_, err := s.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: 0.1, BarIndex: 10,
	}, "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)

	found, err := s.QueryByClientOrderID(context.Background(), "BUY_BTCUSDT_1700000000000_ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", found.Symbol)

	require.NoError(t, s.CancelByClientOrderID(context.Background(), "BUY_BTCUSDT_1700000000000_ab12cd34"))
}
