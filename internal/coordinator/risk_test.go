package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

func TestRiskAgent_CalmMarketIsNeutral(t *testing.T) {
	agent := NewRiskAgent()
	state := domain.MarketState{
		Price:      100,
		Indicators: domain.Indicators{ATR: 1},
		OrderBook: domain.OrderBookTop{
			Bids: []domain.OrderBookLevel{{Price: 99.99, Size: 1}},
			Asks: []domain.OrderBookLevel{{Price: 100.01, Size: 1}},
		},
	}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Score)
	assert.Equal(t, []string{"no elevated risk condition detected"}, out.Reasons)
}

func TestRiskAgent_HighVolatilityFundingAndSpreadStack(t *testing.T) {
	agent := NewRiskAgent()
	state := domain.MarketState{
		Price:       100,
		Indicators:  domain.Indicators{ATR: 6}, // 6% of price
		FundingRate: 0.002,
		OrderBook: domain.OrderBookTop{
			Bids: []domain.OrderBookLevel{{Price: 99, Size: 1}},
			Asks: []domain.OrderBookLevel{{Price: 101, Size: 1}},
		},
	}

	out, err := agent.Analyse(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, -1.0, out.Score) // clamped floor
	assert.Len(t, out.Reasons, 3)
}

func TestRiskAgent_EmptyOrderBookHasZeroSpread(t *testing.T) {
	assert.Equal(t, 0.0, bookSpread(domain.OrderBookTop{}))
}

func TestRiskAgent_VetoThresholdScoresClampToRange(t *testing.T) {
	agent := NewRiskAgent()
	out, err := agent.Analyse(context.Background(), domain.MarketState{Price: 100, Indicators: domain.Indicators{ATR: 20}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Score, -1.0)
	assert.LessOrEqual(t, out.Score, 0.0)
	assert.LessOrEqual(t, out.Score, riskVetoThreshold)
}
