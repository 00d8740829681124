package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/strategy"
)

func TestNewStrategyAgent_NilConfigUsesDefault(t *testing.T) {
	agent := NewStrategyAgent(nil)
	require.NotNil(t, agent.config)
}

func TestStrategyAgent_DefaultStrategyTrendEnabledWithNilConfigDoesNotPanic(t *testing.T) {
	agent := NewStrategyAgent(strategy.NewDefaultStrategy("default"))
	state := domain.MarketState{Price: 100, Indicators: domain.Indicators{EMAFast: 101, EMASlow: 99}}

	assert.NotPanics(t, func() {
		_, err := agent.Analyse(context.Background(), state)
		require.NoError(t, err)
	})
}

func TestStrategyAgent_ReversionRSIOversoldTriggersEntry(t *testing.T) {
	cfg := strategy.NewDefaultStrategy("reversion-test")
	cfg.Agents.Enabled.Reversion = true
	cfg.Agents.Enabled.Trend = false
	cfg.Agents.Reversion = &strategy.ReversionAgentConfig{
		EntryConditions: strategy.ReversionEntry{RSIOversold: 30},
		ExitConditions:  strategy.ReversionExit{RSINeutral: 50},
	}

	agent := NewStrategyAgent(cfg)
	state := domain.MarketState{Price: 100, Indicators: domain.Indicators{RSI: 20}}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.Greater(t, out.Score, 0.0)
	assert.Contains(t, out.Reasons, "mean-reversion: rsi below oversold threshold")
}

func TestStrategyAgent_ReversionExitFadesSignalNearNeutral(t *testing.T) {
	cfg := strategy.NewDefaultStrategy("reversion-test")
	cfg.Agents.Enabled.Reversion = true
	cfg.Agents.Enabled.Trend = false
	cfg.Agents.Reversion = &strategy.ReversionAgentConfig{
		EntryConditions: strategy.ReversionEntry{RSIOversold: 30},
		ExitConditions:  strategy.ReversionExit{RSINeutral: 15},
	}

	agent := NewStrategyAgent(cfg)
	state := domain.MarketState{Price: 100, Indicators: domain.Indicators{RSI: 20}}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out.Reasons, "mean-reversion: rsi back to neutral, fading signal")
}

func TestStrategyAgent_TrendFollowingRequiresADXAboveThreshold(t *testing.T) {
	cfg := strategy.NewDefaultStrategy("trend-test")
	cfg.Agents.Enabled.Reversion = false
	cfg.Agents.Enabled.Trend = true
	cfg.Agents.Trend = &strategy.TrendAgentConfig{ADXPeriod: 14, ADXThreshold: 25}

	agent := NewStrategyAgent(cfg)

	candles := make([]domain.Candle, 30)
	price := 100.0
	for i := range candles {
		price += 1.0 // steady uptrend -> high ADX
		candles[i] = domain.Candle{Open: price - 1, High: price + 0.5, Low: price - 1.5, Close: price}
	}
	state := domain.MarketState{
		Price:      price,
		Indicators: domain.Indicators{EMAFast: 105, EMASlow: 100},
		Windows:    []domain.OHLCVWindow{{Timeframe: "1h", Candles: candles}},
	}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.NotEqual(t, []string{"no strategy rule triggered"}, out.Reasons)
}

func TestStrategyAgent_NoRuleTriggeredReturnsNeutralReason(t *testing.T) {
	cfg := strategy.NewDefaultStrategy("disabled-test")
	cfg.Agents.Enabled.Reversion = false
	cfg.Agents.Enabled.Trend = false

	agent := NewStrategyAgent(cfg)
	out, err := agent.Analyse(context.Background(), domain.MarketState{Price: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"no strategy rule triggered"}, out.Reasons)
	assert.Equal(t, 0.0, out.Score)
}

func TestStrategyAgent_Revise_DampensScoreAndAppendsReason(t *testing.T) {
	agent := NewStrategyAgent(nil)
	previous := domain.AgentOutput{AgentName: "strategy", Score: 0.6, Confidence: 0.7, Reasons: []string{"trend rule fired"}}

	revised, err := agent.Revise(context.Background(), domain.MarketState{}, previous, "risk flagged elevated volatility")
	require.NoError(t, err)
	assert.Less(t, revised.Score, previous.Score)
	assert.Contains(t, revised.Reasons[len(revised.Reasons)-1], "revised after debate")
}
