package adapter

import (
	"context"
	"strconv"
	"sync"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/apperr"
	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/resilience"
)

// BinanceAdapter wraps adshao/go-binance/v2, delegating rate limiting,
// retry and per-service circuit breaking to the Network Resilience
// layer (spec.md §4.2: "Rate limiting, timeout, and retry are
// delegated to the Network Resilience layer").
type BinanceAdapter struct {
	client   *binancesdk.Client
	breakers *resilience.ServiceBreakers
	limiter  *resilience.RateLimiter
	retry    resilience.RetryConfig
	log      zerolog.Logger

	mu       sync.RWMutex
	orders   map[string]*domain.Order // internal order-id -> Order
	byCOID   map[string]string        // client-order-id -> order-id
	byExchID map[string]string        // exchange order-id -> internal order-id
}

// BinanceConfig holds credentials and testnet selection.
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// NewBinanceAdapter builds an adapter bound to Binance, wired through
// the given Network Resilience components.
func NewBinanceAdapter(cfg BinanceConfig, breakers *resilience.ServiceBreakers, limiter *resilience.RateLimiter, retry resilience.RetryConfig, log zerolog.Logger) *BinanceAdapter {
	binancesdk.UseTestnet = cfg.Testnet
	client := binancesdk.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceAdapter{
		client:   client,
		breakers: breakers,
		limiter:  limiter,
		retry:    retry,
		log:      log.With().Str("component", "binance_adapter").Logger(),
		orders:   make(map[string]*domain.Order),
		byCOID:   make(map[string]string),
		byExchID: make(map[string]string),
	}
}

func (b *BinanceAdapter) Connect(ctx context.Context) error    { return nil }
func (b *BinanceAdapter) Disconnect(ctx context.Context) error { return nil }

func (b *BinanceAdapter) callThroughResilience(ctx context.Context, rateLimitKey string, op func(ctx context.Context) (any, error)) (any, error) {
	if err := b.limiter.Allow(rateLimitKey); err != nil {
		return nil, err
	}

	var result any
	err := resilience.WithRetry(ctx, b.retry, func(ctx context.Context) error {
		r, callErr := b.breakers.Call("exchange", func() (any, error) {
			return op(ctx)
		})
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})
	return result, err
}

// CreateOrder places an order on Binance, tagging it with
// clientOrderID as newClientOrderId. A resubmit whose clientOrderID is
// already in this adapter's local table returns that order without a
// new exchange call. Exchange errors are not inspected: a duplicate
// newClientOrderId rejected by Binance is not recognised as "already
// placed" and, like any other error, marks the order FAILED and is
// returned to the caller.
func (b *BinanceAdapter) CreateOrder(ctx context.Context, req domain.OrderRequest, clientOrderID string) (*domain.Order, error) {
	b.mu.Lock()
	if existingID, ok := b.byCOID[clientOrderID]; ok {
		existing := b.orders[existingID]
		b.mu.Unlock()
		return existing, nil
	}
	b.mu.Unlock()

	side := binancesdk.SideTypeBuy
	if req.Side == domain.SideSell {
		side = binancesdk.SideTypeSell
	}

	now := time.Now()
	order := &domain.Order{
		OrderRequest:  req,
		OrderID:       uuid.New().String(),
		ClientOrderID: clientOrderID,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	result, err := b.callThroughResilience(ctx, "binance:orders", func(ctx context.Context) (any, error) {
		svc := b.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(side).
			NewClientOrderID(clientOrderID)

		switch req.Type {
		case domain.OrderTypeLimit:
			svc = svc.Type(binancesdk.OrderTypeLimit).
				TimeInForce(binancesdk.TimeInForceTypeGTC).
				Quantity(formatFloat(req.Quantity)).
				Price(formatFloat(req.Price))
		default:
			svc = svc.Type(binancesdk.OrderTypeMarket).Quantity(formatFloat(req.Quantity))
		}
		return svc.Do(ctx)
	})

	if err != nil {
		order.Status = domain.StatusFailed
		order.RejectReason = err.Error()
		return order, err
	}

	resp := result.(*binancesdk.CreateOrderResponse)
	order.Status = mapBinanceStatus(resp.Status)
	if order.Status == domain.StatusFilled {
		price := parseFloatSafe(resp.Price)
		qty := parseFloatSafe(resp.ExecutedQuantity)
		order.FilledQty = qty
		order.AvgFillPrice = price
		filledAt := time.Now()
		order.FilledAt = &filledAt
	}
	order.UpdatedAt = time.Now()

	exchangeID := strconv.FormatInt(resp.OrderID, 10)

	b.mu.Lock()
	b.orders[order.OrderID] = order
	b.byCOID[clientOrderID] = order.OrderID
	b.byExchID[exchangeID] = order.OrderID
	b.mu.Unlock()

	return order, nil
}

func mapBinanceStatus(s binancesdk.OrderStatusType) domain.OrderStatus {
	switch s {
	case binancesdk.OrderStatusTypeNew:
		return domain.StatusOpen
	case binancesdk.OrderStatusTypePartiallyFilled:
		return domain.StatusPartial
	case binancesdk.OrderStatusTypeFilled:
		return domain.StatusFilled
	case binancesdk.OrderStatusTypeCanceled:
		return domain.StatusCancelled
	case binancesdk.OrderStatusTypeRejected, binancesdk.OrderStatusTypeExpired:
		return domain.StatusRejected
	default:
		return domain.StatusSubmitted
	}
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	b.mu.RLock()
	order, ok := b.orders[orderID]
	b.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.APIError, "order not found: "+orderID)
	}
	if order.Frozen() {
		return order, nil
	}

	_, err := b.callThroughResilience(ctx, "binance:orders", func(ctx context.Context) (any, error) {
		return b.client.NewCancelOrderService().
			Symbol(order.Symbol).
			OrigClientOrderID(order.ClientOrderID).
			Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	order.Status = domain.StatusCancelled
	order.UpdatedAt = time.Now()
	b.mu.Unlock()
	return order, nil
}

func (b *BinanceAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[orderID]
	if !ok {
		return nil, apperr.New(apperr.APIError, "order not found: "+orderID)
	}
	return order, nil
}

func (b *BinanceAdapter) ListOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.Order
	for _, o := range b.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (b *BinanceAdapter) ListPositions(ctx context.Context) ([]domain.Position, error) {
	result, err := b.callThroughResilience(ctx, "binance:account", func(ctx context.Context) (any, error) {
		return b.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return nil, err
	}
	account := result.(*binancesdk.Account)

	var positions []domain.Position
	for _, bal := range account.Balances {
		free := parseFloatSafe(bal.Free)
		if free <= 0 {
			continue
		}
		positions = append(positions, domain.Position{Symbol: bal.Asset, Side: domain.PositionLong, Size: free})
	}
	return positions, nil
}

func (b *BinanceAdapter) GetBalance(ctx context.Context) (domain.AccountState, error) {
	result, err := b.callThroughResilience(ctx, "binance:account", func(ctx context.Context) (any, error) {
		return b.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return domain.AccountState{}, err
	}
	account := result.(*binancesdk.Account)

	var total float64
	for _, bal := range account.Balances {
		total += parseFloatSafe(bal.Free) + parseFloatSafe(bal.Locked)
	}
	return domain.AccountState{TotalEquity: total, AvailableBalance: total}, nil
}

func (b *BinanceAdapter) GetTicker(ctx context.Context, symbol string) (domain.OrderBookTop, error) {
	result, err := b.callThroughResilience(ctx, "binance:market-data", func(ctx context.Context) (any, error) {
		return b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return domain.OrderBookTop{}, err
	}
	tickers := result.([]*binancesdk.BookTicker)
	if len(tickers) == 0 {
		return domain.OrderBookTop{}, apperr.New(apperr.APIError, "no ticker data for "+symbol)
	}
	t := tickers[0]
	return domain.OrderBookTop{
		Bids: []domain.OrderBookLevel{{Price: parseFloatSafe(t.BidPrice), Size: parseFloatSafe(t.BidQuantity)}},
		Asks: []domain.OrderBookLevel{{Price: parseFloatSafe(t.AskPrice), Size: parseFloatSafe(t.AskQuantity)}},
	}, nil
}

// SubscribeTicker is intentionally not implemented on the REST
// adapter; internal/market's WebSocket layer (gorilla/websocket,
// grounded on the teacher's market-data streaming) owns live ticks and
// feeds MarketState assembly directly.
func (b *BinanceAdapter) SubscribeTicker(ctx context.Context, symbol string, out chan<- domain.OrderBookTop) error {
	return apperr.New(apperr.APIError, "use internal/market's websocket stream for live ticks")
}

func (b *BinanceAdapter) QueryByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	b.mu.RLock()
	orderID, ok := b.byCOID[clientOrderID]
	b.mu.RUnlock()
	if ok {
		return b.GetOrder(ctx, orderID)
	}
	return nil, apperr.New(apperr.APIError, "unknown client-order-id: "+clientOrderID)
}

func (b *BinanceAdapter) CancelByClientOrderID(ctx context.Context, clientOrderID string) error {
	b.mu.RLock()
	orderID, ok := b.byCOID[clientOrderID]
	b.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.APIError, "unknown client-order-id: "+clientOrderID)
	}
	_, err := b.CancelOrder(ctx, orderID)
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 8, 64)
}

func parseFloatSafe(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
