package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

func TestTechnicalAgent_BullishIndicatorsProduceBullishScore(t *testing.T) {
	agent := NewTechnicalAgent()
	state := domain.MarketState{
		Symbol: "BTCUSDT",
		Price:  100,
		Indicators: domain.Indicators{
			EMAFast:    101,
			EMASlow:    99,
			RSI:        25,
			MACDHist:   1,
			BollLower:  100,
			BollUpper:  110,
		},
	}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "market", out.AgentName)
	assert.Greater(t, out.Score, 0.0)
	assert.NotEmpty(t, out.Reasons)
}

func TestTechnicalAgent_NeutralIndicatorsFallBackToDefaultReason(t *testing.T) {
	agent := NewTechnicalAgent()
	state := domain.MarketState{Symbol: "BTCUSDT", Price: 100}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, []string{"no significant technical signal"}, out.Reasons)
	assert.Equal(t, 0.0, out.Score)
}

func TestTechnicalAgent_Revise_DampensScoreAndAppendsReason(t *testing.T) {
	agent := NewTechnicalAgent()
	previous := domain.AgentOutput{AgentName: "market", Score: 0.8, Confidence: 0.9, Reasons: []string{"strong uptrend"}}

	revised, err := agent.Revise(context.Background(), domain.MarketState{}, previous, "risk and macro are bearish")
	require.NoError(t, err)
	assert.Less(t, revised.Score, previous.Score)
	assert.Less(t, revised.Confidence, previous.Confidence)
	assert.Contains(t, revised.Reasons[len(revised.Reasons)-1], "revised after debate")
}

func TestTechnicalAgent_TrendStrengthReturnsZeroWithoutHourlyWindow(t *testing.T) {
	agent := NewTechnicalAgent()
	assert.Equal(t, 0.0, agent.trendStrength(domain.MarketState{}))
}
