package coordinator

import (
	"time"

	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

// riskVetoThreshold is the one-vote veto the risk agent holds over the
// rest of the panel (spec.md §4.3).
const riskVetoThreshold = -0.5

// actionThreshold is the |total| below which the Coordinator holds
// regardless of position state (spec.md §4.3 action-selection table).
const actionThreshold = 0.1

// baseStopLossPct is the unscaled stop-loss percentage sizing starts
// from before the risk-score-dependent 0.8x/1.0x multiplier; clamped
// into the configured [min,max] stop-loss band.
const baseStopLossPct = 0.02

// aggregate implements spec.md §4.3's weighted-vote aggregation,
// action-selection table, and sizing/leverage formula. outputs must be
// keyed by agent name ("market","strategy","risk","on_chain","sentiment",
// "macro"); a missing entry contributes zero weight.
func aggregate(outputs map[string]domain.AgentOutput, weights config.AgentWeights, risk config.RiskConfig, account domain.AccountState, symbol, strategyID, traceID string) domain.TradeDecision {
	total := 0.0
	weightedConfidence := 0.0
	var reasons []string

	type weighted struct {
		name   string
		weight float64
	}
	pairs := []weighted{
		{"market", weights.Market},
		{"strategy", weights.Strategy},
		{"risk", weights.Risk},
		{"on_chain", weights.OnChain},
		{"sentiment", weights.Sentiment},
		{"macro", weights.Macro},
	}
	for _, p := range pairs {
		out, ok := outputs[p.name]
		if !ok {
			continue
		}
		total += p.weight * out.Score
		weightedConfidence += p.weight * out.Confidence
		reasons = append(reasons, out.Reasons...)
	}

	riskOut := outputs["risk"]
	riskScore := clamp(-riskOut.Score, 0, 1) // risk agent's score is in [-1,0]
	vetoed := riskOut.Score <= riskVetoThreshold

	confidence := domain.ConfidenceBreakdown{
		Overall:     weightedConfidence,
		Technical:   outputs["market"].Confidence,
		Fundamental: (outputs["on_chain"].Confidence + outputs["macro"].Confidence) / 2,
		Sentiment:   outputs["sentiment"].Confidence,
	}

	hasLong := account.HasLong(symbol)
	hasShort := account.HasShort(symbol)

	action := selectAction(total, vetoed, hasLong, hasShort)

	decision := domain.TradeDecision{
		Action:          action,
		Symbol:          symbol,
		Confidence:      confidence,
		Reasons:         dedupReasons(reasons),
		StrategyID:      strategyID,
		RiskScore:       riskScore,
		RiskCheckPassed: !vetoed,
		TraceID:         traceID,
		CreatedAt:       createdAt(),
	}

	if action == domain.ActionHold {
		return decision
	}

	currentExposure := 0.0
	if account.TotalEquity > 0 {
		currentExposure = clamp(account.TotalExposure()/account.TotalEquity, 0, 1)
	}

	decision.Size = clamp(weightedConfidence*(1-riskScore*0.5)*(1-currentExposure), 0.01, risk.MaxPositionPct)

	atrPct := outputs["risk"].SubIndicators["atr_pct"]
	decision.Leverage = clamp(leverageFor(weightedConfidence, riskScore, atrPct), 1, risk.MaxLeverage)

	baseStop := clamp(baseStopLossPct, risk.MinStopLossPct, risk.MaxStopLossPct)
	slMultiplier := 1.0
	tpMultiplier := 2.0
	if riskScore > 0.5 {
		slMultiplier = 0.8
		tpMultiplier = 1.5
	}
	decision.StopLossPct = clamp(baseStop*slMultiplier, risk.MinStopLossPct, risk.MaxStopLossPct)
	decision.TakeProfitPct = clamp(decision.StopLossPct*tpMultiplier, 0, risk.MaxTakeProfitPct)

	return decision
}

// selectAction implements spec.md §4.3's action-selection table,
// including the close-then-reopen tie-break for reversing positions.
func selectAction(total float64, vetoed, hasLong, hasShort bool) domain.Action {
	if vetoed {
		return domain.ActionHold
	}
	if total > -actionThreshold && total < actionThreshold {
		return domain.ActionHold
	}

	if total >= actionThreshold {
		if hasShort {
			return domain.ActionCover
		}
		if hasLong {
			return domain.ActionHold
		}
		return domain.ActionBuy
	}

	// total <= -actionThreshold
	if hasLong {
		return domain.ActionSell
	}
	if hasShort {
		return domain.ActionHold
	}
	return domain.ActionShort
}

// leverageFor applies spec.md §4.3's discrete confidence/risk leverage
// table, then the ATR/price volatility adjustment.
func leverageFor(confidence, riskScore, atrPct float64) float64 {
	var base float64
	switch {
	case confidence > 0.7 && riskScore < 0.3:
		base = 3
	case confidence > 0.6 && riskScore < 0.4:
		base = 2
	case confidence > 0.5 && riskScore < 0.5:
		base = 1.5
	default:
		base = 1
	}

	switch {
	case atrPct > 0.05:
		base *= 0.5
	case atrPct < 0.02 && atrPct > 0:
		base *= 1.2
	}
	return base
}

func dedupReasons(reasons []string) []string {
	seen := make(map[string]bool, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// createdAt is split out so it's the one non-deterministic call in this
// file; tests construct decisions directly when they need a fixed time.
func createdAt() time.Time { return time.Now() }
