package coordinator

import (
	"context"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// RiskAgent is the "risk" analyst in the weighted vote (spec.md §4.3),
// distinct from the downstream Risk Gateway (internal/risk): it scores
// how hostile *current market conditions* look (volatility, funding
// extremes, illiquidity), not account-level exposure limits. A
// sufficiently negative score here vetoes the tick outright regardless
// of the other agents' votes.
type RiskAgent struct{}

func NewRiskAgent() *RiskAgent { return &RiskAgent{} }

func (a *RiskAgent) Name() string { return "risk" }

func (a *RiskAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	var score float64
	var reasons []string

	atrPct := 0.0
	if state.Price > 0 {
		atrPct = state.Indicators.ATR / state.Price
	}
	switch {
	case atrPct > 0.05:
		score -= 0.6
		reasons = append(reasons, "atr/price above 5%, volatility elevated")
	case atrPct > 0.03:
		score -= 0.3
		reasons = append(reasons, "atr/price above 3%, volatility rising")
	}

	if state.FundingRate != 0 {
		absFunding := state.FundingRate
		if absFunding < 0 {
			absFunding = -absFunding
		}
		if absFunding > 0.001 {
			score -= 0.3
			reasons = append(reasons, "funding rate extreme, crowded positioning risk")
		}
	}

	spread := bookSpread(state.OrderBook)
	if spread > 0.002 {
		score -= 0.3
		reasons = append(reasons, "orderbook spread wide, thin liquidity")
	}

	score = clamp(score, -1, 0)
	confidence := 0.7
	if len(reasons) == 0 {
		reasons = []string{"no elevated risk condition detected"}
		confidence = 0.5
	}

	return domain.AgentOutput{
		AgentName:  a.Name(),
		Score:      score,
		Confidence: confidence,
		Reasons:    reasons,
		SubIndicators: map[string]float64{
			"atr_pct": atrPct,
			"spread":  spread,
		},
	}, nil
}

// bookSpread returns the best-bid/best-ask spread as a fraction of mid
// price, or 0 if either side of the book is empty.
func bookSpread(book domain.OrderBookTop) float64 {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0
	}
	bestBid := book.Bids[0].Price
	bestAsk := book.Asks[0].Price
	mid := (bestBid + bestAsk) / 2
	if mid == 0 {
		return 0
	}
	return (bestAsk - bestBid) / mid
}
