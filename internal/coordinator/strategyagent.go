package coordinator

import (
	"context"

	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/indicators"
	"github.com/cryptoctl/tradeengine/internal/strategy"
)

// StrategyAgent applies the thresholds of one active strategy.StrategyConfig
// (RSI oversold/overbought bands, Bollinger-touch mean reversion, ADX
// trend-following) as the "strategy-rule" analyst named in spec.md §4.3.
// Unlike the TechnicalAgent's generic read of the indicator set, this
// agent's signal depends on which strategy the symbol is currently
// running.
type StrategyAgent struct {
	config *strategy.StrategyConfig
}

func NewStrategyAgent(config *strategy.StrategyConfig) *StrategyAgent {
	if config == nil {
		config = strategy.NewDefaultStrategy("default")
	}
	return &StrategyAgent{config: config}
}

func (a *StrategyAgent) Name() string { return "strategy" }

func (a *StrategyAgent) Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error) {
	ind := state.Indicators
	var score, confidence float64
	var reasons []string

	if a.config.Agents.Enabled.Reversion && a.config.Agents.Reversion != nil {
		entry := a.config.Agents.Reversion.EntryConditions
		switch {
		case entry.RSIOversold > 0 && ind.RSI <= float64(entry.RSIOversold):
			score += 0.5
			confidence += 0.3
			reasons = append(reasons, "mean-reversion: rsi below oversold threshold")
		case entry.BollingerTouch && ind.BollLower != 0 && state.Price <= ind.BollLower:
			score += 0.4
			confidence += 0.3
			reasons = append(reasons, "mean-reversion: price touched lower band")
		}
		exit := a.config.Agents.Reversion.ExitConditions
		if exit.RSINeutral > 0 && ind.RSI >= float64(exit.RSINeutral) && score > 0 {
			score *= 0.5
			reasons = append(reasons, "mean-reversion: rsi back to neutral, fading signal")
		}
	}

	if a.config.Agents.Enabled.Trend {
		var period int
		var threshold float64
		if trendCfg := a.config.Agents.Trend; trendCfg != nil {
			period = trendCfg.ADXPeriod
			threshold = trendCfg.ADXThreshold
		}
		if period == 0 {
			period = adxTrendPeriod
		}
		window, ok := state.Window("1h")
		var adx float64
		if ok {
			adx = indicators.TrendStrength(window.Candles, period)
		}
		if threshold == 0 {
			threshold = 25
		}
		if adx >= threshold {
			confidence += 0.3
			if ind.EMAFast > ind.EMASlow {
				score += 0.4
				reasons = append(reasons, "trend-following: strong uptrend")
			} else if ind.EMAFast < ind.EMASlow {
				score -= 0.4
				reasons = append(reasons, "trend-following: strong downtrend")
			}
		}
	}

	score = clamp(score, -1, 1)
	confidence = clamp(confidence, 0.1, 0.9)
	if len(reasons) == 0 {
		reasons = []string{"no strategy rule triggered"}
	}

	return domain.AgentOutput{
		AgentName:  a.Name(),
		Score:      score,
		Confidence: confidence,
		Reasons:    reasons,
	}, nil
}

// Revise implements DebateParticipant the same way TechnicalAgent does:
// the underlying rule fired on fixed config thresholds and doesn't
// change mid-tick, so a dissenting vote is dampened rather than
// recomputed.
func (a *StrategyAgent) Revise(ctx context.Context, state domain.MarketState, previous domain.AgentOutput, dissentSummary string) (domain.AgentOutput, error) {
	revised := previous
	revised.Score = clamp(previous.Score*0.5, -1, 1)
	revised.Confidence = clamp(previous.Confidence*0.8, 0, 1)
	revised.Reasons = append(append([]string{}, previous.Reasons...), "revised after debate: "+dissentSummary)
	return revised, nil
}
