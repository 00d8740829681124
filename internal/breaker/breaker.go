// Package breaker implements the three-tier Circuit Breaker (spec.md
// §4.4): independent STRATEGY, ACCOUNT and SYSTEM state machines, each
// persisted durably on every transition and restored before the Risk
// Gateway accepts its first order. This is the domain-level breaker;
// it is distinct from internal/resilience's per-dependency gobreaker
// wrapping (network-layer failure isolation for exchange/database
// calls) — see DESIGN.md.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// Thresholds holds the per-tier trigger levels (spec.md §4.4),
// populated from config.CircuitBreakerConfig at construction.
type Thresholds struct {
	StrategyMaxDailyLossPct   float64
	StrategyConsecutiveLosses int
	AccountMaxDailyLossPct    float64
	AccountMaxDrawdownPct     float64
	SystemVolatilityThreshold float64
	SystemAPIFailureThreshold int
	SystemPanicSellRatio      float64
	AutoRecoverMinutes        int
	ManualRecoverRequired     bool
}

// Store persists CircuitBreakerState durably; internal/db provides the
// Postgres-backed implementation. Load is called once at startup so
// state survives a process restart (spec.md §4.4's persistence
// requirement); Save is called on every transition.
type Store interface {
	Save(ctx context.Context, state domain.CircuitBreakerState) error
	LoadAll(ctx context.Context) ([]domain.CircuitBreakerState, error)
}

// Manager owns the in-memory breaker states and mirrors every
// transition to Store.
type Manager struct {
	mu         sync.RWMutex
	thresholds Thresholds
	store      Store
	log        zerolog.Logger

	strategy map[string]domain.CircuitBreakerState
	account  domain.CircuitBreakerState
	system   domain.CircuitBreakerState
}

// NewManager builds a Manager with all tiers NORMAL. Call Restore
// before accepting orders to load any persisted TRIGGERED/WARNING
// state from a prior process.
func NewManager(thresholds Thresholds, store Store, log zerolog.Logger) *Manager {
	return &Manager{
		thresholds: thresholds,
		store:      store,
		log:        log.With().Str("component", "circuit_breaker").Logger(),
		strategy:   make(map[string]domain.CircuitBreakerState),
		account:    domain.CircuitBreakerState{Level: domain.BreakerAccount, Status: domain.BreakerNormal},
		system:     domain.CircuitBreakerState{Level: domain.BreakerSystem, Status: domain.BreakerNormal},
	}
}

// Restore loads persisted state before the Risk Gateway accepts any
// order (spec.md §4.4).
func (m *Manager) Restore(ctx context.Context) error {
	states, err := m.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		switch s.Level {
		case domain.BreakerStrategy:
			m.strategy[s.OwnerKey] = s
		case domain.BreakerAccount:
			m.account = s
		case domain.BreakerSystem:
			m.system = s
		}
	}
	m.log.Info().Int("restored_states", len(states)).Msg("circuit breaker state restored")
	return nil
}

// StrategyMetrics is the per-tick input to EvaluateStrategy.
type StrategyMetrics struct {
	StrategyID        string
	DailyPnL          float64
	AllocatedNotional float64
	ConsecutiveLosses int
}

// EvaluateStrategy checks one strategy's metrics against the
// strategy-tier thresholds, updating and persisting state on any
// transition. Returns false with a reason when new orders from this
// strategy must be blocked; existing positions are never touched by
// this tier (spec.md §4.4).
func (m *Manager) EvaluateStrategy(ctx context.Context, metrics StrategyMetrics) (bool, string) {
	m.mu.Lock()
	current := m.strategy[metrics.StrategyID]
	if current.Level == "" {
		current = domain.CircuitBreakerState{Level: domain.BreakerStrategy, OwnerKey: metrics.StrategyID, Status: domain.BreakerNormal}
	}
	m.mu.Unlock()

	if current.Status == domain.BreakerTriggered {
		return false, current.TriggerReason
	}

	lossThreshold := metrics.AllocatedNotional * m.thresholds.StrategyMaxDailyLossPct
	if metrics.DailyPnL < -lossThreshold {
		reason := fmt.Sprintf("strategy %s daily loss exceeded %.1f%% of allocated notional", metrics.StrategyID, m.thresholds.StrategyMaxDailyLossPct*100)
		m.transitionStrategy(ctx, metrics.StrategyID, domain.BreakerTriggered, reason, metrics.DailyPnL, -lossThreshold)
		return false, reason
	}

	if metrics.ConsecutiveLosses >= m.thresholds.StrategyConsecutiveLosses {
		reason := fmt.Sprintf("strategy %s had %d consecutive losing trades", metrics.StrategyID, metrics.ConsecutiveLosses)
		m.transitionStrategy(ctx, metrics.StrategyID, domain.BreakerTriggered, reason, float64(metrics.ConsecutiveLosses), float64(m.thresholds.StrategyConsecutiveLosses))
		return false, reason
	}

	if -metrics.DailyPnL > lossThreshold*0.5 {
		m.transitionStrategy(ctx, metrics.StrategyID, domain.BreakerWarning, "", metrics.DailyPnL, -lossThreshold)
	}

	return true, ""
}

func (m *Manager) transitionStrategy(ctx context.Context, strategyID string, status domain.BreakerStatus, reason string, value, threshold float64) {
	now := time.Now()
	state := domain.CircuitBreakerState{
		Level:         domain.BreakerStrategy,
		OwnerKey:      strategyID,
		Status:        status,
		TriggerReason: reason,
		TriggerValue:  value,
		Threshold:     threshold,
	}
	if status == domain.BreakerTriggered {
		state.TriggeredAt = &now
	}

	m.mu.Lock()
	m.strategy[strategyID] = state
	m.mu.Unlock()

	m.persist(ctx, state)
	if status == domain.BreakerTriggered {
		m.log.Warn().Str("strategy_id", strategyID).Str("reason", reason).Msg("strategy circuit breaker triggered")
	}
}

// AccountMetrics is the per-tick input to EvaluateAccount.
type AccountMetrics struct {
	DailyPnL    float64
	TotalEquity float64
	Drawdown    float64 // fraction of high-water-mark, e.g. 0.12 = 12%
}

// EvaluateAccount checks account-wide daily loss, drawdown and the
// Risk Gateway's rule 13 signal against the account-tier thresholds.
// When triggered, new opening orders are blocked but reducing orders
// remain allowed (enforced by the Risk Gateway, not here).
func (m *Manager) EvaluateAccount(ctx context.Context, metrics AccountMetrics) (bool, string) {
	m.mu.RLock()
	current := m.account
	m.mu.RUnlock()

	if current.Status == domain.BreakerTriggered {
		return false, current.TriggerReason
	}

	lossThreshold := metrics.TotalEquity * m.thresholds.AccountMaxDailyLossPct
	if metrics.DailyPnL < -lossThreshold {
		reason := fmt.Sprintf("account daily loss %.1f%% exceeded limit %.1f%%", -metrics.DailyPnL/metrics.TotalEquity*100, m.thresholds.AccountMaxDailyLossPct*100)
		m.transitionAccount(ctx, domain.BreakerTriggered, reason, metrics.DailyPnL, -lossThreshold)
		return false, reason
	}

	if metrics.Drawdown > m.thresholds.AccountMaxDrawdownPct {
		reason := fmt.Sprintf("account drawdown %.1f%% exceeded limit %.1f%%", metrics.Drawdown*100, m.thresholds.AccountMaxDrawdownPct*100)
		m.transitionAccount(ctx, domain.BreakerTriggered, reason, metrics.Drawdown, m.thresholds.AccountMaxDrawdownPct)
		return false, reason
	}

	if -metrics.DailyPnL > lossThreshold*0.5 {
		m.transitionAccount(ctx, domain.BreakerWarning, "", metrics.DailyPnL, -lossThreshold)
	}

	return true, ""
}

func (m *Manager) transitionAccount(ctx context.Context, status domain.BreakerStatus, reason string, value, threshold float64) {
	now := time.Now()
	state := domain.CircuitBreakerState{
		Level:         domain.BreakerAccount,
		Status:        status,
		TriggerReason: reason,
		TriggerValue:  value,
		Threshold:     threshold,
	}
	if status == domain.BreakerTriggered {
		state.TriggeredAt = &now
	}

	m.mu.Lock()
	m.account = state
	m.mu.Unlock()

	m.persist(ctx, state)
	if status == domain.BreakerTriggered {
		m.log.Warn().Str("reason", reason).Msg("account circuit breaker triggered")
	}
}

// SystemMetrics is the per-tick input to EvaluateSystem.
type SystemMetrics struct {
	Volatility      float64 // returns-stdev over last N bars
	APIFailureCount int
	PanicSellRatio  float64
	AllPositions    []domain.Position
}

// EvaluateSystem checks market-wide conditions against the
// system-tier thresholds. On volatility or panic-sell triggers it
// returns the list of positions to close (all for volatility/panic,
// none for API failures, per spec.md §4.4).
func (m *Manager) EvaluateSystem(ctx context.Context, metrics SystemMetrics) (ok bool, reason string, positionsToClose []domain.Position) {
	m.mu.RLock()
	current := m.system
	m.mu.RUnlock()

	if current.Status == domain.BreakerTriggered {
		return false, current.TriggerReason, nil
	}

	if metrics.Volatility > m.thresholds.SystemVolatilityThreshold {
		reason := fmt.Sprintf("market volatility %.1f%% exceeded limit %.1f%%", metrics.Volatility*100, m.thresholds.SystemVolatilityThreshold*100)
		m.transitionSystem(ctx, reason, metrics.Volatility, m.thresholds.SystemVolatilityThreshold)
		return false, reason, metrics.AllPositions
	}

	if metrics.APIFailureCount >= m.thresholds.SystemAPIFailureThreshold {
		reason := fmt.Sprintf("%d consecutive exchange API failures", metrics.APIFailureCount)
		m.transitionSystem(ctx, reason, float64(metrics.APIFailureCount), float64(m.thresholds.SystemAPIFailureThreshold))
		return false, reason, nil
	}

	if metrics.PanicSellRatio > m.thresholds.SystemPanicSellRatio {
		reason := fmt.Sprintf("panic-sell ratio %.1f%% exceeded limit %.1f%%", metrics.PanicSellRatio*100, m.thresholds.SystemPanicSellRatio*100)
		m.transitionSystem(ctx, reason, metrics.PanicSellRatio, m.thresholds.SystemPanicSellRatio)
		return false, reason, metrics.AllPositions
	}

	if metrics.Volatility > m.thresholds.SystemVolatilityThreshold*0.5 {
		m.transitionSystemStatus(ctx, domain.BreakerWarning, "", metrics.Volatility, m.thresholds.SystemVolatilityThreshold)
	}

	return true, "", nil
}

func (m *Manager) transitionSystem(ctx context.Context, reason string, value, threshold float64) {
	m.transitionSystemStatus(ctx, domain.BreakerTriggered, reason, value, threshold)
	m.log.Warn().Str("reason", reason).Msg("system circuit breaker triggered")
}

func (m *Manager) transitionSystemStatus(ctx context.Context, status domain.BreakerStatus, reason string, value, threshold float64) {
	now := time.Now()
	state := domain.CircuitBreakerState{
		Level:         domain.BreakerSystem,
		Status:        status,
		TriggerReason: reason,
		TriggerValue:  value,
		Threshold:     threshold,
	}
	if status == domain.BreakerTriggered {
		state.TriggeredAt = &now
	}

	m.mu.Lock()
	m.system = state
	m.mu.Unlock()

	m.persist(ctx, state)
}

func (m *Manager) persist(ctx context.Context, state domain.CircuitBreakerState) {
	if err := m.store.Save(ctx, state); err != nil {
		m.log.Error().Err(err).Str("key", state.Key()).Msg("failed to persist circuit breaker state")
	}
}
