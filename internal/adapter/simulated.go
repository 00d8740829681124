package adapter

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/apperr"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

// LatencyModel describes the distribution used to delay simulated
// fill-event emission (spec.md §4.2: "Latency is simulated by
// delaying fill-event emission by a configurable distribution").
type LatencyModel struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Sample draws a uniform random delay in [MinDelay, MaxDelay].
func (l LatencyModel) Sample() time.Duration {
	if l.MaxDelay <= l.MinDelay {
		return l.MinDelay
	}
	span := l.MaxDelay - l.MinDelay
	return l.MinDelay + time.Duration(rand.Int63n(int64(span)))
}

// BarSource supplies the current bar the simulator is evaluating
// against; the backtest engine advances it tick by tick, the live
// paper-trading mode advances it as real candles close.
type BarSource interface {
	CurrentBarIndex() int64
	CurrentBar(symbol string) (domain.Candle, bool)
}

// Simulated is the deterministic fill-model adapter (spec.md §4.2).
// Given identical inputs (price feed, fee config, RNG seed) it
// produces identical fills, which is what lets a backtest run carry
// over unchanged to live paper trading.
type Simulated struct {
	mu      sync.RWMutex
	orders  map[string]*domain.Order
	byCOID  map[string]string // client-order-id -> order-id
	fees    config.FeeConfig
	bars    BarSource
	latency LatencyModel
	log     zerolog.Logger
	sink    OrderUpdateSink
}

// NewSimulated builds a Simulated adapter bound to a bar source (for
// look-ahead detection and close-of-bar fills) and fee config.
func NewSimulated(fees config.FeeConfig, bars BarSource, latency LatencyModel, log zerolog.Logger) *Simulated {
	return &Simulated{
		orders:  make(map[string]*domain.Order),
		byCOID:  make(map[string]string),
		fees:    fees,
		bars:    bars,
		latency: latency,
		log:     log.With().Str("component", "simulated_adapter").Logger(),
	}
}

// SetSink registers a receiver for delayed fill events.
func (s *Simulated) SetSink(sink OrderUpdateSink) { s.sink = sink }

func (s *Simulated) Connect(ctx context.Context) error    { return nil }
func (s *Simulated) Disconnect(ctx context.Context) error { return nil }

// CreateOrder fills at the close of the current bar (spec.md §4.2),
// applying the slippage formula
// price * (1 + base_slip + (notional/bar_volume) * impact_coef) and
// the configured fee, subject to the look-ahead invariant: the
// request's BarIndex must not be strictly after the simulator's
// current bar.
func (s *Simulated) CreateOrder(ctx context.Context, req domain.OrderRequest, clientOrderID string) (*domain.Order, error) {
	s.mu.Lock()
	if existingID, ok := s.byCOID[clientOrderID]; ok {
		existing := s.orders[existingID]
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	currentIdx := s.bars.CurrentBarIndex()
	if req.BarIndex > currentIdx {
		return nil, apperr.New(apperr.RiskCheckFailed, fmt.Sprintf("look-ahead detected: request bar %d is after current simulation bar %d", req.BarIndex, currentIdx))
	}

	bar, ok := s.bars.CurrentBar(req.Symbol)
	if !ok {
		return nil, apperr.New(apperr.APIError, "no bar data available for "+req.Symbol)
	}

	now := time.Now()
	order := &domain.Order{
		OrderRequest:  req,
		OrderID:       uuid.New().String(),
		ClientOrderID: clientOrderID,
		Status:        domain.StatusSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.orders[order.OrderID] = order
	s.byCOID[clientOrderID] = order.OrderID
	s.mu.Unlock()

	fillPrice := s.fillPrice(req, bar)

	go s.emitFillAfterLatency(order.OrderID, fillPrice, bar)

	return order, nil
}

// fillPrice applies the slippage model for market/limit orders and the
// stop/take-profit bar-by-bar evaluation for stop orders.
func (s *Simulated) fillPrice(req domain.OrderRequest, bar domain.Candle) float64 {
	switch req.Type {
	case domain.OrderTypeStop, domain.OrderTypeStopLimit:
		return s.evaluateStop(req, bar)
	default:
		notional := req.Notional(bar.Close)
		slip := s.slippage(notional, bar.Volume)
		direction := 1.0
		if req.Side == domain.SideSell {
			direction = -1.0
		}
		return bar.Close * (1 + direction*slip)
	}
}

// slippage returns base_slip + (notional/bar_volume)*impact_coef,
// capped at max_slippage (spec.md §4.2).
func (s *Simulated) slippage(notional, barVolume float64) float64 {
	if barVolume <= 0 {
		barVolume = 1
	}
	slip := s.fees.BaseSlippage + (notional/barVolume)*s.fees.ImpactCoef
	if s.fees.MaxSlippage > 0 && slip > s.fees.MaxSlippage {
		slip = s.fees.MaxSlippage
	}
	return slip
}

// evaluateStop fills at stop-price if the bar crosses it: for a long
// stop-loss (SELL), fill if bar low <= stop price; for a short
// stop-loss (BUY to cover), fill if bar high >= stop price. Orders
// that don't cross this bar are carried forward unfilled by the
// caller (status stays SUBMITTED/OPEN until a later bar triggers it).
func (s *Simulated) evaluateStop(req domain.OrderRequest, bar domain.Candle) float64 {
	if req.Side == domain.SideSell {
		if bar.Low <= req.StopPrice {
			return req.StopPrice
		}
		return math.NaN()
	}
	if bar.High >= req.StopPrice {
		return req.StopPrice
	}
	return math.NaN()
}

func (s *Simulated) emitFillAfterLatency(orderID string, fillPrice float64, bar domain.Candle) {
	delay := s.latency.Sample()
	time.Sleep(delay)

	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return
	}

	if math.IsNaN(fillPrice) {
		// Stop/take-profit not yet triggered this bar; leave OPEN for
		// re-evaluation on the next bar.
		order.Status = domain.StatusOpen
		order.UpdatedAt = time.Now()
		s.mu.Unlock()
		if s.sink != nil {
			s.sink.OnOrderUpdate(order)
		}
		return
	}

	fee := s.fees.Taker * order.Quantity * fillPrice
	now := time.Now()
	order.Status = domain.StatusFilled
	order.FilledQty = order.Quantity
	order.AvgFillPrice = fillPrice
	order.Fee = fee
	order.UpdatedAt = now
	order.FilledAt = &now
	order.Fills = append(order.Fills, domain.Fill{Quantity: order.Quantity, Price: fillPrice, Fee: fee, Timestamp: now})
	s.mu.Unlock()

	s.log.Debug().Str("order_id", order.OrderID).Float64("fill_price", fillPrice).Msg("simulated order filled")
	if s.sink != nil {
		s.sink.OnOrderUpdate(order)
	}
}

func (s *Simulated) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, apperr.New(apperr.APIError, "order not found: "+orderID)
	}
	if order.Frozen() {
		return order, nil
	}
	order.Status = domain.StatusCancelled
	order.UpdatedAt = time.Now()
	return order, nil
}

func (s *Simulated) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, apperr.New(apperr.APIError, "order not found: "+orderID)
	}
	return order, nil
}

func (s *Simulated) ListOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListPositions is not derived by the Simulated adapter itself — the
// Execution Adapter's position table (internal/db) derives it from
// the fill history this adapter produces. Returning an empty slice
// here keeps the interface satisfied for components that only need
// order placement (e.g. unit tests).
func (s *Simulated) ListPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (s *Simulated) GetBalance(ctx context.Context) (domain.AccountState, error) {
	return domain.AccountState{}, nil
}

func (s *Simulated) GetTicker(ctx context.Context, symbol string) (domain.OrderBookTop, error) {
	bar, ok := s.bars.CurrentBar(symbol)
	if !ok {
		return domain.OrderBookTop{}, apperr.New(apperr.APIError, "no bar data available for "+symbol)
	}
	spread := bar.Close * 0.0002
	return domain.OrderBookTop{
		Bids: []domain.OrderBookLevel{{Price: bar.Close - spread, Size: bar.Volume}},
		Asks: []domain.OrderBookLevel{{Price: bar.Close + spread, Size: bar.Volume}},
	}, nil
}

func (s *Simulated) SubscribeTicker(ctx context.Context, symbol string, out chan<- domain.OrderBookTop) error {
	return apperr.New(apperr.APIError, "Simulated adapter has no live ticker stream; poll GetTicker per bar")
}

func (s *Simulated) QueryByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	s.mu.RLock()
	orderID, ok := s.byCOID[clientOrderID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.APIError, "unknown client-order-id: "+clientOrderID)
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Simulated) CancelByClientOrderID(ctx context.Context, clientOrderID string) error {
	s.mu.RLock()
	orderID, ok := s.byCOID[clientOrderID]
	s.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.APIError, "unknown client-order-id: "+clientOrderID)
	}
	_, err := s.CancelOrder(ctx, orderID)
	return err
}
