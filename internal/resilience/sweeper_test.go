package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

type fakeOrderStore struct {
	pending  []*domain.Order
	statuses map[string]domain.OrderStatus
	reasons  map[string]string
}

func newFakeOrderStore(orders ...*domain.Order) *fakeOrderStore {
	return &fakeOrderStore{pending: orders, statuses: map[string]domain.OrderStatus{}, reasons: map[string]string{}}
}

func (s *fakeOrderStore) PendingOlderThan(ctx context.Context, age time.Duration) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range s.pending {
		if time.Since(o.CreatedAt) >= age {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) error {
	s.statuses[orderID] = status
	s.reasons[orderID] = reason
	return nil
}

type fakeExchangeQuerier struct {
	queryResult *domain.Order
	queryErr    error
	cancelErr   error
}

func (f *fakeExchangeQuerier) QueryByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	return f.queryResult, f.queryErr
}

func (f *fakeExchangeQuerier) CancelByClientOrderID(ctx context.Context, clientOrderID string) error {
	return f.cancelErr
}

func oldPendingOrder() *domain.Order {
	return &domain.Order{
		OrderRequest:  domain.OrderRequest{Symbol: "BTC-USDT"},
		OrderID:       "order-1",
		ClientOrderID: "BUY_BTCUSDT_1700000000000_ab12cd34",
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().Add(-1 * time.Hour),
	}
}

func TestSweeper_ReconcilesWhenExchangeReportsTerminal(t *testing.T) {
	order := oldPendingOrder()
	store := newFakeOrderStore(order)
	exchange := &fakeExchangeQuerier{
		queryResult: &domain.Order{Status: domain.StatusFilled},
	}
	sweeper := NewHangingOrderSweeper(SweeperConfig{ThresholdSeconds: 1, CleanupIntervalSeconds: 1}, store, exchange, zerolog.Nop())

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	assert.Equal(t, domain.StatusFilled, store.statuses["order-1"])
	assert.Equal(t, "reconciled_by_sweep", store.reasons["order-1"])
}

func TestSweeper_CancelsWhenStillUnknown(t *testing.T) {
	order := oldPendingOrder()
	store := newFakeOrderStore(order)
	exchange := &fakeExchangeQuerier{
		queryErr: errors.New("not found"),
	}
	sweeper := NewHangingOrderSweeper(SweeperConfig{ThresholdSeconds: 1, CleanupIntervalSeconds: 1}, store, exchange, zerolog.Nop())

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	assert.Equal(t, domain.StatusCancelled, store.statuses["order-1"])
	assert.Equal(t, "hanging_sweep", store.reasons["order-1"])
}

func TestSweeper_RetriesOnCancelFailure(t *testing.T) {
	order := oldPendingOrder()
	store := newFakeOrderStore(order)
	exchange := &fakeExchangeQuerier{
		queryErr:  errors.New("not found"),
		cancelErr: errors.New("exchange unreachable"),
	}
	sweeper := NewHangingOrderSweeper(SweeperConfig{ThresholdSeconds: 1, CleanupIntervalSeconds: 1}, store, exchange, zerolog.Nop())

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	_, recorded := store.statuses["order-1"]
	assert.False(t, recorded, "order should remain untouched until a future sweep succeeds")
}

func TestSweeper_SkipsOrdersYoungerThanThreshold(t *testing.T) {
	order := &domain.Order{
		OrderID:       "order-2",
		ClientOrderID: "BUY_ETHUSDT_1700000000000_ef56gh78",
		Status:        domain.StatusPending,
		CreatedAt:     time.Now(),
	}
	store := newFakeOrderStore(order)
	exchange := &fakeExchangeQuerier{}
	sweeper := NewHangingOrderSweeper(SweeperConfig{ThresholdSeconds: 1800, CleanupIntervalSeconds: 300}, store, exchange, zerolog.Nop())

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	_, recorded := store.statuses["order-2"]
	assert.False(t, recorded)
}
