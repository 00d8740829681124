package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

func testWeights() config.AgentWeights { return config.DefaultAgentWeights() }

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPct:   0.10,
		MaxLeverage:      3,
		MinStopLossPct:   0.01,
		MaxStopLossPct:   0.15,
		MaxTakeProfitPct: 0.30,
	}
}

func bullishOutputs() map[string]domain.AgentOutput {
	return map[string]domain.AgentOutput{
		"market":    {AgentName: "market", Score: 0.6, Confidence: 0.8, Reasons: []string{"uptrend"}},
		"strategy":  {AgentName: "strategy", Score: 0.5, Confidence: 0.7, Reasons: []string{"trend rule fired"}},
		"risk":      {AgentName: "risk", Score: -0.1, Confidence: 0.6, Reasons: []string{"low volatility"}, SubIndicators: map[string]float64{"atr_pct": 0.01}},
		"on_chain":  {AgentName: "on_chain", Score: 0.2, Confidence: 0.4, Reasons: []string{"accumulation"}},
		"sentiment": {AgentName: "sentiment", Score: 0.1, Confidence: 0.4, Reasons: []string{"neutral"}},
		"macro":     {AgentName: "macro", Score: 0, Confidence: 0.1, Reasons: []string{"no macro data source configured"}},
	}
}

func TestAggregate_BullishConsensusProducesBuy(t *testing.T) {
	decision := aggregate(bullishOutputs(), testWeights(), testRiskConfig(), domain.AccountState{TotalEquity: 10000}, "BTCUSDT", "strat-1", "trace-1")
	assert.Equal(t, domain.ActionBuy, decision.Action)
	assert.True(t, decision.RiskCheckPassed)
	assert.Greater(t, decision.Size, 0.0)
	assert.LessOrEqual(t, decision.Size, testRiskConfig().MaxPositionPct)
	assert.GreaterOrEqual(t, decision.Leverage, 1.0)
}

func TestAggregate_RiskVetoForcesHold(t *testing.T) {
	outputs := bullishOutputs()
	risk := outputs["risk"]
	risk.Score = -0.6
	outputs["risk"] = risk

	decision := aggregate(outputs, testWeights(), testRiskConfig(), domain.AccountState{TotalEquity: 10000}, "BTCUSDT", "strat-1", "trace-1")
	assert.Equal(t, domain.ActionHold, decision.Action)
	assert.False(t, decision.RiskCheckPassed)
}

func TestAggregate_NearZeroTotalIsHold(t *testing.T) {
	outputs := map[string]domain.AgentOutput{
		"market":    {AgentName: "market", Score: 0.05, Confidence: 0.5, Reasons: []string{"flat"}},
		"strategy":  {AgentName: "strategy", Score: -0.05, Confidence: 0.5, Reasons: []string{"flat"}},
		"risk":      {AgentName: "risk", Score: 0, Confidence: 0.5, Reasons: []string{"calm"}},
		"on_chain":  {AgentName: "on_chain", Score: 0, Confidence: 0.3, Reasons: []string{"neutral"}},
		"sentiment": {AgentName: "sentiment", Score: 0, Confidence: 0.3, Reasons: []string{"neutral"}},
		"macro":     {AgentName: "macro", Score: 0, Confidence: 0.1, Reasons: []string{"no data"}},
	}
	decision := aggregate(outputs, testWeights(), testRiskConfig(), domain.AccountState{}, "BTCUSDT", "strat-1", "trace-1")
	assert.Equal(t, domain.ActionHold, decision.Action)
}

func TestAggregate_BearishWithExistingLongSells(t *testing.T) {
	outputs := bullishOutputs()
	for name, out := range outputs {
		out.Score = -out.Score
		outputs[name] = out
	}
	account := domain.AccountState{TotalEquity: 10000, Positions: []domain.Position{{Symbol: "BTCUSDT", Side: domain.PositionLong, Size: 1, MarkPrice: 50000}}}
	decision := aggregate(outputs, testWeights(), testRiskConfig(), account, "BTCUSDT", "strat-1", "trace-1")
	assert.Equal(t, domain.ActionSell, decision.Action)
}

func TestAggregate_ExistingShortOnBullishTotalCovers(t *testing.T) {
	account := domain.AccountState{TotalEquity: 10000, Positions: []domain.Position{{Symbol: "BTCUSDT", Side: domain.PositionShort, Size: 1, MarkPrice: 50000}}}
	decision := aggregate(bullishOutputs(), testWeights(), testRiskConfig(), account, "BTCUSDT", "strat-1", "trace-1")
	assert.Equal(t, domain.ActionCover, decision.Action)
}

func TestSelectAction_Table(t *testing.T) {
	cases := []struct {
		total              float64
		vetoed, hasLong, hasShort bool
		want               domain.Action
	}{
		{0.05, false, false, false, domain.ActionHold},
		{0.2, false, false, false, domain.ActionBuy},
		{0.2, false, false, true, domain.ActionCover},
		{0.2, false, true, false, domain.ActionHold},
		{-0.2, false, false, false, domain.ActionShort},
		{-0.2, false, true, false, domain.ActionSell},
		{-0.2, false, false, true, domain.ActionHold},
		{0.9, true, false, false, domain.ActionHold},
	}
	for _, c := range cases {
		got := selectAction(c.total, c.vetoed, c.hasLong, c.hasShort)
		assert.Equal(t, c.want, got, "total=%.2f vetoed=%v hasLong=%v hasShort=%v", c.total, c.vetoed, c.hasLong, c.hasShort)
	}
}

func TestLeverageFor_HighConfidenceLowRiskGivesMaxTable(t *testing.T) {
	assert.Equal(t, 3.0, leverageFor(0.8, 0.1, 0.03))
	assert.Equal(t, 1.0, leverageFor(0.3, 0.8, 0.03))
}

func TestLeverageFor_VolatilityDampensOrBoosts(t *testing.T) {
	highVol := leverageFor(0.8, 0.1, 0.06)
	lowVol := leverageFor(0.8, 0.1, 0.01)
	assert.Less(t, highVol, lowVol)
}

func TestAggregate_MissingAgentContributesZeroWeight(t *testing.T) {
	outputs := bullishOutputs()
	delete(outputs, "macro")
	decision := aggregate(outputs, testWeights(), testRiskConfig(), domain.AccountState{TotalEquity: 10000}, "BTCUSDT", "strat-1", "trace-1")
	require.NotNil(t, decision)
}
