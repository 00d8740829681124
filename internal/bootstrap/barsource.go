package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// BarSource feeds the Simulated adapter's look-ahead check (spec.md
// §4.2) during live paper trading: the bar index advances once per
// tick loop iteration, and CurrentBar reports the latest closed candle
// the Market-Data Service fetched for symbol this tick.
type BarSource struct {
	index atomic.Int64

	mu   sync.RWMutex
	bars map[string]domain.Candle
}

func newBarSource() *BarSource {
	return &BarSource{bars: make(map[string]domain.Candle)}
}

func (t *BarSource) CurrentBarIndex() int64 {
	return t.index.Load()
}

func (t *BarSource) CurrentBar(symbol string) (domain.Candle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.bars[symbol]
	return c, ok
}

// SetBar records the latest candle observed for symbol this tick; call
// NextTick once per tick after every symbol's bar is set.
func (t *BarSource) SetBar(symbol string, candle domain.Candle) {
	t.mu.Lock()
	t.bars[symbol] = candle
	t.mu.Unlock()
}

func (t *BarSource) NextTick() {
	t.index.Add(1)
}

// OrderTracker maintains an in-memory view of open orders for the
// Hanging Order Sweeper (spec.md §4.6), fed by the events the tick
// loop publishes after every Risk Gateway Submit call. A restart loses
// this view; the sweeper only needs it to catch orders stuck during
// this process's own lifetime, not across restarts.
type OrderTracker struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func newOrderTracker() *OrderTracker {
	return &OrderTracker{orders: make(map[string]*domain.Order)}
}

func (t *OrderTracker) Track(order *domain.Order) {
	if order == nil || order.OrderID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[order.OrderID] = order
}

// PendingOlderThan satisfies resilience.OrderStore for the Hanging
// Order Sweeper.
func (t *OrderTracker) PendingOlderThan(ctx context.Context, age time.Duration) ([]*domain.Order, error) {
	cutoff := time.Now().Add(-age)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var pending []*domain.Order
	for _, o := range t.orders {
		if !o.Status.Terminal() && o.CreatedAt.Before(cutoff) {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// UpdateStatus satisfies resilience.OrderStore.
func (t *OrderTracker) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.orders[orderID]; ok {
		o.Status = status
		o.RejectReason = reason
		o.UpdatedAt = time.Now()
	}
	return nil
}
