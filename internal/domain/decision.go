package domain

import "time"

// Action is the final decision produced by the Coordinator for one symbol.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionShort Action = "SHORT"
	ActionCover Action = "COVER"
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
)

// AgentOutput is one analyst's verdict on a MarketState (spec.md §3).
type AgentOutput struct {
	AgentName     string   `json:"agent_name"`
	Score         float64  `json:"score"`      // [-1, 1], positive = bullish
	Confidence    float64  `json:"confidence"` // [0, 1]
	Reasons       []string `json:"reasons"`
	SubIndicators map[string]float64 `json:"sub_indicators,omitempty"`
}

// Valid checks the AgentOutput invariant: score/confidence finite, reasons
// non-empty when |score| >= 0.1.
func (o AgentOutput) Valid() bool {
	if o.Score < -1 || o.Score > 1 || o.Confidence < 0 || o.Confidence > 1 {
		return false
	}
	if abs(o.Score) >= 0.1 && len(o.Reasons) == 0 {
		return false
	}
	return true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ConfidenceBreakdown splits aggregate confidence into the tripartite view
// carried on a TradeDecision (spec.md §3).
type ConfidenceBreakdown struct {
	Overall     float64 `json:"overall"`
	Technical   float64 `json:"technical"`
	Fundamental float64 `json:"fundamental"`
	Sentiment   float64 `json:"sentiment"`
}

// TradeDecision is produced by the Coordinator, then annotated (possibly
// size-reduced) by the Risk Gateway. Immutable once dispatched.
type TradeDecision struct {
	Action          Action               `json:"action"`
	Symbol          string               `json:"symbol"`
	Size            float64              `json:"size"` // fraction of equity, (0, max_position_pct]
	Leverage        float64              `json:"leverage"`
	StopLossPct     float64              `json:"stop_loss_pct"`
	TakeProfitPct   float64              `json:"take_profit_pct"`
	Confidence      ConfidenceBreakdown  `json:"confidence"`
	Reasons         []string             `json:"reasons"`
	StrategyID      string               `json:"strategy_id"`
	RiskScore       float64              `json:"risk_score"` // [0, 1]
	RiskCheckPassed bool                 `json:"risk_check_passed"`
	TraceID         string               `json:"trace_id"`
	CreatedAt       time.Time            `json:"created_at"`
}
