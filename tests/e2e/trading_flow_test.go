package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/adapter"
	"github.com/cryptoctl/tradeengine/internal/breaker"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/coordinator"
	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/eventbus"
	"github.com/cryptoctl/tradeengine/internal/idempotency"
	"github.com/cryptoctl/tradeengine/internal/market"
	"github.com/cryptoctl/tradeengine/internal/risk"
	"github.com/cryptoctl/tradeengine/internal/strategy"
)

// harness assembles the real Risk Gateway -> Idempotency -> Execution
// Adapter chain, plus the Market-Data Service and Decision Coordinator
// feeding it, exactly as cmd/orchestrator's engine wires them.
type harness struct {
	bars   *liveBarSource
	exec   adapter.Adapter
	riskGW *risk.Gateway
	market *market.Service
	coord  *coordinator.Coordinator
	events *eventbus.Bus
	audit  *recordingAuditStore
}

func newHarness(t *testing.T, cfg config.RiskConfig) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	bars := newLiveBarSource()
	fees := config.FeeConfig{Maker: 0.001, Taker: 0.001, BaseSlippage: 0.0005, ImpactCoef: 0.0001, MaxSlippage: 0.01}
	exec := adapter.NewSimulated(fees, bars, adapter.LatencyModel{MinDelay: 0, MaxDelay: time.Millisecond}, zerolog.Nop())

	breakerMgr := breaker.NewManager(breaker.Thresholds{
		StrategyMaxDailyLossPct:   0.2,
		AccountMaxDailyLossPct:    0.2,
		AccountMaxDrawdownPct:     0.5,
		SystemVolatilityThreshold: 0.5,
		SystemAPIFailureThreshold: 50,
		SystemPanicSellRatio:      0.9,
	}, noopBreakerStore{}, zerolog.Nop())

	idemStore := idempotency.NewStore(redisClient, 24, 5*time.Second)
	auditStore := &recordingAuditStore{}
	gw := risk.NewGateway(cfg, breakerMgr, idemStore, exec, auditStore, zerolog.Nop())

	fetcher := &fakeCandleFetcher{basePrice: 50000, trend: 2}
	ohlcvCache := market.NewOHLCVCache(redisClient, zerolog.Nop())
	marketSvc := market.NewService(fetcher, ohlcvCache, nil, zerolog.Nop())

	agents := []coordinator.Agent{
		coordinator.NewTechnicalAgent(),
		coordinator.NewStrategyAgent(strategy.NewDefaultStrategy("e2e-default")),
		coordinator.NewRiskAgent(),
		coordinator.NewOnChainAgent(),
		coordinator.NewSentimentAgent(),
		coordinator.NewMacroAgent(),
	}
	coord := coordinator.New(agents, config.DefaultAgentWeights(), cfg, 2*time.Second, 0, zerolog.Nop())

	events, err := eventbus.New(eventbus.Config{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(events.Close)

	return &harness{bars: bars, exec: exec, riskGW: gw, market: marketSvc, coord: coord, events: events, audit: auditStore}
}

// TestE2E_MarketDataThroughRiskGateway drives one full tick: fetch a
// MarketState, let the Decision Coordinator vote, submit the resulting
// decision through the Risk Gateway, and confirm it reaches the
// Execution Adapter and fills.
func TestE2E_MarketDataThroughRiskGateway(t *testing.T) {
	cfg := config.RiskConfig{
		MaxLeverage:             5,
		MaxPositionPct:          0.5,
		MaxSingleSymbolExposure: 100000,
		MaxTotalExposure:        500000,
		MaxOpenPositions:        10,
		MinStopLossPct:          0.005,
		MaxStopLossPct:          0.2,
		MaxTakeProfitPct:        0.5,
		MaxDailyLossPct:         0.2,
		MaxDailyTrades:          100,
		DrawdownTriggerPct:      0.5,
		DustNotional:            1,
	}
	h := newHarness(t, cfg)
	ctx := context.Background()
	symbol := "BTCUSDT"

	require.NoError(t, h.exec.Connect(ctx))
	defer h.exec.Disconnect(ctx)

	account := symbolAccount(100000, 50000)

	state, err := h.market.GetMarketState(ctx, symbol, h.bars.CurrentBarIndex())
	require.NoError(t, err)
	h.bars.setBar(symbol, domain.Candle{OpenTime: state.Timestamp, Close: state.Price})

	decision := h.coord.Decide(ctx, state, account, symbol, "e2e-default", "trace-1")
	t.Logf("decision: action=%s size=%.2f confidence=%.2f reasons=%v", decision.Action, decision.Size, decision.Confidence, decision.Reasons)

	if decision.Action == domain.ActionHold {
		t.Skip("coordinator held, nothing to submit for this synthetic market state")
	}

	req := buildOrderRequest(decision, state)
	order, err := h.riskGW.Submit(ctx, req, account)
	require.NoError(t, err)
	require.NotNil(t, order)

	if !order.Status.Terminal() {
		require.Eventually(t, func() bool {
			got, err := h.exec.GetOrder(ctx, order.OrderID)
			return err == nil && got.Status.Terminal()
		}, time.Second, 5*time.Millisecond)
	}

	assert.NotEmpty(t, h.audit.records, "risk gateway must audit every submission attempt")
	assert.Equal(t, req.Symbol, h.audit.records[len(h.audit.records)-1].OriginalDecision.Symbol)
}

// TestE2E_RiskGatewayRejectsOverLeveragedOrder exercises the gateway's
// pure validation path end to end without touching the adapter: a
// request breaching max leverage must never reach CreateOrder.
func TestE2E_RiskGatewayRejectsOverLeveragedOrder(t *testing.T) {
	cfg := config.RiskConfig{
		MaxLeverage:             3,
		MaxPositionPct:          0.5,
		MaxSingleSymbolExposure: 100000,
		MaxTotalExposure:        500000,
		MaxOpenPositions:        10,
		MinStopLossPct:          0.005,
		MaxStopLossPct:          0.2,
		MaxTakeProfitPct:        0.5,
		MaxDailyLossPct:         0.2,
		MaxDailyTrades:          100,
		DrawdownTriggerPct:      0.5,
	}
	h := newHarness(t, cfg)
	ctx := context.Background()
	require.NoError(t, h.exec.Connect(ctx))
	defer h.exec.Disconnect(ctx)

	account := symbolAccount(100000, 50000)
	req := domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
		Quantity: 1, Price: 50000, Leverage: 20, StopLossPct: 0.02,
	}

	order, err := h.riskGW.Submit(ctx, req, account)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.StatusRejected, order.Status)
	assert.NotEmpty(t, order.RejectReason)
	assert.NotEmpty(t, h.audit.records)
	assert.False(t, h.audit.records[len(h.audit.records)-1].RiskCheckPassed)
}

// TestE2E_DuplicateSubmissionSuppressed confirms the idempotency layer
// between the Risk Gateway and the adapter actually dedups identical
// requests instead of double-filling.
func TestE2E_DuplicateSubmissionSuppressed(t *testing.T) {
	cfg := config.RiskConfig{
		MaxLeverage: 5, MaxPositionPct: 0.5, MaxSingleSymbolExposure: 100000,
		MaxTotalExposure: 500000, MaxOpenPositions: 10, MinStopLossPct: 0.005,
		MaxStopLossPct: 0.2, MaxTakeProfitPct: 0.5, MaxDailyLossPct: 0.2,
		MaxDailyTrades: 100, DrawdownTriggerPct: 0.5,
	}
	h := newHarness(t, cfg)
	ctx := context.Background()
	require.NoError(t, h.exec.Connect(ctx))
	defer h.exec.Disconnect(ctx)

	account := symbolAccount(100000, 50000)
	req := domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
		Quantity: 0.1, Price: 50000, Leverage: 2, StopLossPct: 0.02, BarIndex: h.bars.CurrentBarIndex(),
	}
	h.bars.setBar("BTCUSDT", domain.Candle{Close: 50000})

	first, err := h.riskGW.Submit(ctx, req, account)
	require.NoError(t, err)
	require.NotEqual(t, domain.StatusRejected, first.Status)

	second, err := h.riskGW.Submit(ctx, req, account)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ClientOrderID, second.ClientOrderID, "duplicate submission must return the original order")
}

func buildOrderRequest(decision domain.TradeDecision, state domain.MarketState) domain.OrderRequest {
	side := domain.SideBuy
	reduceOnly := false
	switch decision.Action {
	case domain.ActionSell, domain.ActionShort:
		side = domain.SideSell
	case domain.ActionClose:
		side = domain.SideSell
		reduceOnly = true
	case domain.ActionCover:
		side = domain.SideBuy
		reduceOnly = true
	}
	quantity := 0.0
	if state.Price > 0 && decision.Size > 0 {
		quantity = decision.Size / state.Price
	}
	if quantity <= 0 {
		quantity = 0.01
	}
	return domain.OrderRequest{
		Symbol: decision.Symbol, Side: side, Type: domain.OrderTypeMarket, Quantity: quantity,
		Price: state.Price, Leverage: maxFloat(decision.Leverage, 1), StopLossPct: orDefault(decision.StopLossPct, 0.02),
		TakeProfitPct: orDefault(decision.TakeProfitPct, 0.04), ReduceOnly: reduceOnly,
		Source: "decision_coordinator", StrategyID: decision.StrategyID, TraceID: decision.TraceID,
		BarIndex: state.BarIndex,
	}
}

func maxFloat(v, floor float64) float64 {
	if v <= 0 {
		return floor
	}
	return v
}

func orDefault(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
