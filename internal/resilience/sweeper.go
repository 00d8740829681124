package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// OrderStore is the subset of order persistence the sweeper needs. The
// production implementation lives in internal/db; tests substitute an
// in-memory fake.
type OrderStore interface {
	PendingOlderThan(ctx context.Context, age time.Duration) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason string) error
}

// ExchangeQuerier is the subset of the Execution Adapter interface the
// sweeper needs to reconcile or cancel a hanging order.
type ExchangeQuerier interface {
	QueryByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error)
	CancelByClientOrderID(ctx context.Context, clientOrderID string) error
}

// SweeperConfig controls the hanging-order sweep cadence and threshold
// (spec.md §4.6).
type SweeperConfig struct {
	ThresholdSeconds       int
	CleanupIntervalSeconds int
}

// DefaultSweeperConfig matches spec.md's stated defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{ThresholdSeconds: 1800, CleanupIntervalSeconds: 300}
}

// HangingOrderSweeper periodically reconciles PENDING orders that have
// sat unresolved past the configured threshold.
type HangingOrderSweeper struct {
	cfg      SweeperConfig
	store    OrderStore
	exchange ExchangeQuerier
	log      zerolog.Logger
}

// NewHangingOrderSweeper builds a sweeper bound to a store and
// exchange querier.
func NewHangingOrderSweeper(cfg SweeperConfig, store OrderStore, exchange ExchangeQuerier, log zerolog.Logger) *HangingOrderSweeper {
	return &HangingOrderSweeper{cfg: cfg, store: store, exchange: exchange, log: log.With().Str("component", "hanging_sweeper").Logger()}
}

// Run blocks, sweeping on each tick of the configured interval, until
// ctx is cancelled.
func (s *HangingOrderSweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.CleanupIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("sweep cycle failed")
			}
		}
	}
}

// SweepOnce examines every PENDING order older than the threshold and
// reconciles it, per spec.md §4.6: query by client-order-id, reconcile
// if the exchange reports a terminal state, otherwise attempt a
// cancel-by-client-order-id and mark CANCELLED with reason
// "hanging_sweep" on success. Failures are logged and retried next
// cycle rather than returned, so one bad order doesn't block the rest
// of the sweep.
func (s *HangingOrderSweeper) SweepOnce(ctx context.Context) error {
	threshold := time.Duration(s.cfg.ThresholdSeconds) * time.Second
	pending, err := s.store.PendingOlderThan(ctx, threshold)
	if err != nil {
		return err
	}

	for _, order := range pending {
		s.reconcileOne(ctx, order)
	}
	return nil
}

func (s *HangingOrderSweeper) reconcileOne(ctx context.Context, order *domain.Order) {
	logger := s.log.With().Str("client_order_id", order.ClientOrderID).Logger()

	remote, err := s.exchange.QueryByClientOrderID(ctx, order.ClientOrderID)
	if err == nil && remote != nil && remote.Status.Terminal() {
		if uerr := s.store.UpdateStatus(ctx, order.OrderID, remote.Status, "reconciled_by_sweep"); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to persist reconciled status")
		} else {
			logger.Info().Str("status", string(remote.Status)).Msg("reconciled hanging order from exchange")
		}
		return
	}

	if cerr := s.exchange.CancelByClientOrderID(ctx, order.ClientOrderID); cerr != nil {
		logger.Warn().Err(cerr).Msg("cancel-by-client-order-id failed, will retry next cycle")
		return
	}

	if uerr := s.store.UpdateStatus(ctx, order.OrderID, domain.StatusCancelled, "hanging_sweep"); uerr != nil {
		logger.Error().Err(uerr).Msg("failed to persist cancellation")
		return
	}
	logger.Info().Msg("cancelled hanging order")
}
