// Package adapter implements the Execution Adapter (spec.md §4.2): a
// uniform interface over a Simulated fill model and exchange-backed
// clients, so backtest and live code paths consume identical
// operations.
package adapter

import (
	"context"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// Adapter is the uniform interface the Risk Gateway and backtest
// engine both drive. Implementations: Simulated (this package) and
// the Binance-backed adapter in internal/adapter/binance.go.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	CreateOrder(ctx context.Context, req domain.OrderRequest, clientOrderID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, symbol string) ([]*domain.Order, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
	GetBalance(ctx context.Context) (domain.AccountState, error)
	GetTicker(ctx context.Context, symbol string) (domain.OrderBookTop, error)
	SubscribeTicker(ctx context.Context, symbol string, out chan<- domain.OrderBookTop) error

	// QueryByClientOrderID and CancelByClientOrderID satisfy
	// resilience.ExchangeQuerier for the hanging-order sweeper.
	QueryByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error)
	CancelByClientOrderID(ctx context.Context, clientOrderID string) error
}

// OrderUpdateSink receives asynchronous fill/status events. The
// Simulated adapter uses it to deliver delayed fill events; the
// Binance adapter uses it for user-data-stream execution reports.
type OrderUpdateSink interface {
	OnOrderUpdate(order *domain.Order)
}
