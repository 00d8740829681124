// Package coordinator implements the Decision Coordinator (spec.md
// §4.3): a fixed panel of analyst Agents fanned out concurrently over
// one MarketState, an optional debate refinement, and a weighted-vote
// aggregator that turns their AgentOutputs into one TradeDecision.
package coordinator

import (
	"context"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// Agent is one analyst consulted on every tick. Implementations MUST be
// stateless with respect to the tick: any historical or cross-service
// data they need is pre-computed onto MarketState by the Market-Data
// Service, not fetched here (spec.md §4.3 agent contract).
type Agent interface {
	Name() string
	Analyse(ctx context.Context, state domain.MarketState) (domain.AgentOutput, error)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
