package coordinator

import (
	"context"

	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/indicators"
)

// adxTrendPeriod matches the teacher's default ADX lookback
// (internal/strategy's ADXSettings default is also 14).
const adxTrendPeriod = 14

// TechnicalAgent scores momentum, mean-reversion and trend signals from
// the normative indicator set the Market-Data Service attaches to every
// MarketState (spec.md §4.7 feeding §4.3's "market/technical" analyst).
type TechnicalAgent struct{}

func NewTechnicalAgent() *TechnicalAgent { return &TechnicalAgent{} }

func (a *TechnicalAgent) Name() string { return "market" }

func (a *TechnicalAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	ind := state.Indicators
	var score float64
	var reasons []string

	if ind.EMASlow != 0 {
		emaSignal := (ind.EMAFast - ind.EMASlow) / ind.EMASlow
		score += clamp(emaSignal*10, -0.4, 0.4)
		switch {
		case emaSignal > 0.001:
			reasons = append(reasons, "ema fast above slow")
		case emaSignal < -0.001:
			reasons = append(reasons, "ema fast below slow")
		}
	}

	switch {
	case ind.RSI >= 70:
		score -= 0.3
		reasons = append(reasons, "rsi overbought")
	case ind.RSI <= 30:
		score += 0.3
		reasons = append(reasons, "rsi oversold")
	}

	switch {
	case ind.MACDHist > 0:
		score += 0.2
		reasons = append(reasons, "macd histogram positive")
	case ind.MACDHist < 0:
		score -= 0.2
		reasons = append(reasons, "macd histogram negative")
	}

	switch {
	case ind.BollUpper != 0 && state.Price >= ind.BollUpper:
		score -= 0.2
		reasons = append(reasons, "price at upper bollinger band")
	case ind.BollLower != 0 && state.Price <= ind.BollLower:
		score += 0.2
		reasons = append(reasons, "price at lower bollinger band")
	}

	trend := a.trendStrength(state)
	confidence := clamp(0.4+trend/100, 0.2, 0.95)
	score = clamp(score, -1, 1)

	if len(reasons) == 0 {
		reasons = []string{"no significant technical signal"}
	}

	return domain.AgentOutput{
		AgentName:  a.Name(),
		Score:      score,
		Confidence: confidence,
		Reasons:    reasons,
		SubIndicators: map[string]float64{
			"rsi":       ind.RSI,
			"macd_hist": ind.MACDHist,
			"adx":       trend,
		},
	}, nil
}

// Revise implements DebateParticipant: a dissenting technical score is
// halved toward zero (neutral) rather than discarded, and its confidence
// is scaled by 0.8, reflecting that the indicator reading itself hasn't
// changed, only how much weight to put on it given what the other
// analysts see.
func (a *TechnicalAgent) Revise(ctx context.Context, state domain.MarketState, previous domain.AgentOutput, dissentSummary string) (domain.AgentOutput, error) {
	revised := previous
	revised.Score = clamp(previous.Score*0.5, -1, 1)
	revised.Confidence = clamp(previous.Confidence*0.8, 0, 1)
	revised.Reasons = append(append([]string{}, previous.Reasons...), "revised after debate: "+dissentSummary)
	return revised, nil
}

// trendStrength consults the 1h window, which carries enough candles
// for a period-14 ADX; shorter windows return 0 rather than a noisy
// partial reading.
func (a *TechnicalAgent) trendStrength(state domain.MarketState) float64 {
	window, ok := state.Window("1h")
	if !ok {
		return 0
	}
	return indicators.TrendStrength(window.Candles, adxTrendPeriod)
}
