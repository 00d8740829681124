package coordinator

import (
	"context"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// OnChainAgent turns MarketState.OnChain (or its neutral default when
// the upstream provider was unavailable) into a vote. Exchange-net-flow
// deltas read as selling pressure onto exchanges; withdrawals read as
// accumulation.
type OnChainAgent struct{}

func NewOnChainAgent() *OnChainAgent { return &OnChainAgent{} }

func (a *OnChainAgent) Name() string { return "on_chain" }

func (a *OnChainAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	data := domain.NeutralOnChain()
	if state.OnChain != nil {
		data = *state.OnChain
	}

	score := clamp(-data.ExchangeNetFlow*2, -1, 1)
	reasons := []string{"exchange net-flow neutral"}
	switch {
	case data.ExchangeNetFlow > 0.01:
		reasons = []string{"net inflow to exchanges, possible distribution"}
	case data.ExchangeNetFlow < -0.01:
		reasons = []string{"net outflow from exchanges, possible accumulation"}
	}

	confidence := 0.3
	if state.OnChain != nil {
		confidence = 0.5
	}

	return domain.AgentOutput{AgentName: a.Name(), Score: score, Confidence: confidence, Reasons: reasons}, nil
}

// SentimentAgent turns the fear/greed index into a mild contrarian
// signal: extreme fear favours accumulation, extreme greed favours
// caution, matching the "sentiment" analyst in spec.md §4.3.
type SentimentAgent struct{}

func NewSentimentAgent() *SentimentAgent { return &SentimentAgent{} }

func (a *SentimentAgent) Name() string { return "sentiment" }

func (a *SentimentAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	data := domain.NeutralSentiment()
	if state.Sentiment != nil {
		data = *state.Sentiment
	}

	// FearGreed in [0,100], 50 neutral; below 25 is contrarian-bullish,
	// above 75 contrarian-bearish.
	score := clamp((50-data.FearGreed)/50, -1, 1)
	var reasons []string
	switch {
	case data.FearGreed <= 25:
		reasons = append(reasons, "extreme fear, contrarian bullish")
	case data.FearGreed >= 75:
		reasons = append(reasons, "extreme greed, contrarian bearish")
	default:
		reasons = append(reasons, "sentiment neutral")
	}

	confidence := 0.3
	if state.Sentiment != nil {
		confidence = 0.5
	}

	return domain.AgentOutput{AgentName: a.Name(), Score: score, Confidence: confidence, Reasons: reasons}, nil
}

// MacroAgent folds equity/FX macro deltas into a risk-on/risk-off tilt
// for crypto (spec.md §4.3 "macro" analyst). With no macro data source
// wired (internal/market's CoinGecko provider always falls back to
// NeutralMacro), this agent normally abstains at zero score/low
// confidence; it activates automatically once a macro feed is added
// behind market.AuxiliaryProvider.
type MacroAgent struct{}

func NewMacroAgent() *MacroAgent { return &MacroAgent{} }

func (a *MacroAgent) Name() string { return "macro" }

func (a *MacroAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	data := domain.NeutralMacro()
	if state.Macro != nil {
		data = *state.Macro
	}

	if state.Macro == nil {
		return domain.AgentOutput{
			AgentName:  a.Name(),
			Score:      0,
			Confidence: 0.1,
			Reasons:    []string{"no macro data source configured"},
		}, nil
	}

	// DXY up and yields up are risk-off for crypto; SP500 up is risk-on.
	score := clamp(data.SP500Change/5-data.DXY/2-data.TenYearYield/10, -1, 1)
	reasons := []string{"macro conditions mixed"}
	switch {
	case score > 0.1:
		reasons = []string{"macro risk-on tilt"}
	case score < -0.1:
		reasons = []string{"macro risk-off tilt"}
	}

	return domain.AgentOutput{AgentName: a.Name(), Score: score, Confidence: 0.4, Reasons: reasons}, nil
}
