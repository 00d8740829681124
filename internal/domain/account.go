package domain

// PositionSide is long or short.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Position is a derived, size-weighted view of one open exposure. In
// one-way mode no two open positions share (symbol, side).
type Position struct {
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	Size             float64      `json:"size"`
	EntryPrice       float64      `json:"entry_price"`
	MarkPrice        float64      `json:"mark_price"`
	UnrealisedPnL    float64      `json:"unrealised_pnl"`
	UnrealisedPnLPct float64      `json:"unrealised_pnl_pct"`
	Leverage         float64      `json:"leverage"`
	LiquidationPrice float64      `json:"liquidation_price"`
	Margin           float64      `json:"margin"`
	StopLossPct      float64      `json:"stop_loss_pct"`
	TakeProfitPct    float64      `json:"take_profit_pct"`
}

// Notional is the position's current exposure in quote currency.
func (p Position) Notional() float64 { return p.Size * p.MarkPrice }

// AccountState is rebuilt on demand from the Execution Adapter's order and
// position tables.
type AccountState struct {
	TotalEquity      float64            `json:"total_equity"`
	AvailableBalance float64            `json:"available_balance"`
	MarginBalance    float64            `json:"margin_balance"`
	UnrealisedPnL    float64            `json:"unrealised_pnl"`
	Exposure         map[string]float64 `json:"exposure"` // symbol -> notional
	OpenOrderCount   int                `json:"open_order_count"`
	DailyPnL         float64            `json:"daily_pnl"`
	DailyLossPct     float64            `json:"daily_loss_pct"`
	DailyTradeCount  int                `json:"daily_trade_count"`
	Drawdown         float64            `json:"drawdown"` // peak-to-trough fraction of peak
	HighWaterMark    float64            `json:"high_water_mark"`

	// Positions is the current snapshot of open positions, consistent
	// across symbols (no torn reads, spec.md §4.2).
	Positions []Position `json:"positions"`
}

// TotalExposure sums notional exposure across all symbols.
func (a AccountState) TotalExposure() float64 {
	var total float64
	for _, v := range a.Exposure {
		total += v
	}
	return total
}

// HasLong reports whether the account holds a long position in symbol.
func (a AccountState) HasLong(symbol string) bool {
	for _, p := range a.Positions {
		if p.Symbol == symbol && p.Side == PositionLong {
			return true
		}
	}
	return false
}

// HasShort reports whether the account holds a short position in symbol.
func (a AccountState) HasShort(symbol string) bool {
	for _, p := range a.Positions {
		if p.Symbol == symbol && p.Side == PositionShort {
			return true
		}
	}
	return false
}
