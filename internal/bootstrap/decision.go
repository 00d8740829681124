package bootstrap

import (
	"github.com/google/uuid"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// NewTraceID returns a fresh v4 UUID for tagging one decision/order
// through the Risk Gateway's audit trail.
func NewTraceID() string { return uuid.New().String() }

// DecisionToOrderRequest translates the Decision Coordinator's output
// into the OrderRequest the Risk Gateway admits (spec.md §4.1/§4.3).
// BUY/COVER open or add to a long; SELL/SHORT/CLOSE reduce or open a
// short; CLOSE and COVER are always reduce-only.
func DecisionToOrderRequest(decision domain.TradeDecision, state domain.MarketState) domain.OrderRequest {
	side := domain.SideBuy
	reduceOnly := false

	switch decision.Action {
	case domain.ActionSell, domain.ActionShort:
		side = domain.SideSell
	case domain.ActionClose:
		side = domain.SideSell
		reduceOnly = true
	case domain.ActionCover:
		side = domain.SideBuy
		reduceOnly = true
	}

	quantity := 0.0
	if state.Price > 0 {
		quantity = decision.Size / state.Price
	}

	return domain.OrderRequest{
		Symbol:        decision.Symbol,
		Side:          side,
		Type:          domain.OrderTypeMarket,
		Quantity:      quantity,
		Leverage:      decision.Leverage,
		StopLossPct:   decision.StopLossPct,
		TakeProfitPct: decision.TakeProfitPct,
		ReduceOnly:    reduceOnly,
		Source:        "decision_coordinator",
		StrategyID:    decision.StrategyID,
		TraceID:       decision.TraceID,
	}
}
