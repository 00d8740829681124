package domain

import "time"

// Side is the buy/sell direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType enumerates the supported order types (spec.md §3).
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of an Order. FILLED, CANCELLED,
// REJECTED and FAILED are terminal: once reached the record is frozen.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusOpen      OrderStatus = "OPEN"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status is one the Order record freezes at.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// OrderRequest is the input to the Risk Gateway and, once admitted, to the
// Execution Adapter.
type OrderRequest struct {
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Type        OrderType `json:"type"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price,omitempty"`
	StopPrice   float64   `json:"stop_price,omitempty"`
	Leverage    float64   `json:"leverage"`
	StopLossPct float64   `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	ReduceOnly  bool      `json:"reduce_only"`
	PostOnly    bool      `json:"post_only"`
	Source      string    `json:"source"`
	StrategyID  string    `json:"strategy_id"`
	TraceID     string    `json:"trace_id"`

	// BarIndex is set when the request originates from a backtest tick; the
	// Simulated adapter checks it against the current simulation index to
	// enforce the look-ahead invariant (spec.md §4.2, §8 property 6).
	BarIndex int64 `json:"bar_index,omitempty"`
}

// Notional returns quantity * price for limit-style requests, or
// quantity * refPrice for market requests where price is unset.
func (r OrderRequest) Notional(refPrice float64) float64 {
	p := r.Price
	if p == 0 {
		p = refPrice
	}
	return r.Quantity * p
}

// Fill is one (possibly partial) execution against an Order.
type Fill struct {
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// Order extends OrderRequest with identity and execution state. Once in a
// terminal status the record must not be mutated further.
type Order struct {
	OrderRequest

	OrderID       string      `json:"order_id"` // UUID
	ClientOrderID string      `json:"client_order_id"`
	Status        OrderStatus `json:"status"`
	FilledQty     float64     `json:"filled_qty"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
	Fee           float64     `json:"fee"`
	RejectReason  string      `json:"reject_reason,omitempty"`
	Fills         []Fill      `json:"fills,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
}

// Frozen reports whether the order has reached a terminal status and must
// no longer be mutated (spec.md §3 invariant).
func (o *Order) Frozen() bool { return o.Status.Terminal() }

// ValidationResult is the outcome of a pure Risk Gateway Check call
// (spec.md §4.1): either Approved with the (possibly clamp-modified)
// Request, or rejected with a reject code and human-readable reason.
// AppliedRules records every rule the request passed through, in
// order, for the audit trail. RiskScore is the continuous [0,100]
// diagnostic score (spec.md §6 supplement) that augments, but never
// replaces, the ordered hard-limit rule set.
type ValidationResult struct {
	Approved     bool        `json:"approved"`
	Request      OrderRequest `json:"request"`
	RejectCode   string      `json:"reject_code,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	AppliedRules []string    `json:"applied_rules"`
	RiskScore    float64     `json:"risk_score"`
}
