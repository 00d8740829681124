package breaker

import (
	"context"
	"time"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// CheckRecovery advances TRIGGERED tiers to RECOVERING once
// auto_recover_minutes has elapsed, and RECOVERING to NORMAL after one
// further clean interval (spec.md §4.4). In manual_recover mode,
// TRIGGERED tiers are left untouched until ResetAccount/ResetSystem/
// ResetStrategy is called explicitly. Intended to be invoked on a
// timer by the owning Runtime.
func (m *Manager) CheckRecovery(ctx context.Context) {
	if m.thresholds.ManualRecoverRequired {
		return
	}
	now := time.Now()
	autoRecover := time.Duration(m.thresholds.AutoRecoverMinutes) * time.Minute

	m.mu.Lock()
	account := m.account
	system := m.system
	strategies := make([]string, 0, len(m.strategy))
	for id := range m.strategy {
		strategies = append(strategies, id)
	}
	m.mu.Unlock()

	m.advance(ctx, domain.BreakerAccount, "", account, now, autoRecover)
	m.advance(ctx, domain.BreakerSystem, "", system, now, autoRecover)
	for _, id := range strategies {
		m.mu.RLock()
		s := m.strategy[id]
		m.mu.RUnlock()
		m.advance(ctx, domain.BreakerStrategy, id, s, now, autoRecover)
	}
}

func (m *Manager) advance(ctx context.Context, level domain.BreakerLevel, ownerKey string, state domain.CircuitBreakerState, now time.Time, autoRecover time.Duration) {
	switch state.Status {
	case domain.BreakerTriggered:
		if state.TriggeredAt == nil || now.Sub(*state.TriggeredAt) < autoRecover {
			return
		}
		recoveringAt := now
		state.Status = domain.BreakerRecovering
		state.RecoveringAt = &recoveringAt
		m.setState(level, ownerKey, state)
		m.persist(ctx, state)
	case domain.BreakerRecovering:
		if state.RecoveringAt == nil || now.Sub(*state.RecoveringAt) < autoRecover {
			return
		}
		state.Status = domain.BreakerNormal
		state.TriggeredAt = nil
		state.RecoveringAt = nil
		state.TriggerReason = ""
		m.setState(level, ownerKey, state)
		m.persist(ctx, state)
		m.log.Info().Str("level", string(level)).Str("owner_key", ownerKey).Msg("circuit breaker recovered to normal")
	}
}

func (m *Manager) setState(level domain.BreakerLevel, ownerKey string, state domain.CircuitBreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch level {
	case domain.BreakerStrategy:
		m.strategy[ownerKey] = state
	case domain.BreakerAccount:
		m.account = state
	case domain.BreakerSystem:
		m.system = state
	}
}

// ResetStrategy clears a strategy-tier breaker back to NORMAL — the
// manual-recover path, or an operator override.
func (m *Manager) ResetStrategy(ctx context.Context, strategyID string) {
	state := domain.CircuitBreakerState{Level: domain.BreakerStrategy, OwnerKey: strategyID, Status: domain.BreakerNormal}
	m.setState(domain.BreakerStrategy, strategyID, state)
	m.persist(ctx, state)
	m.log.Info().Str("strategy_id", strategyID).Msg("strategy circuit breaker manually reset")
}

// ResetAccount clears the account-tier breaker back to NORMAL.
func (m *Manager) ResetAccount(ctx context.Context) {
	state := domain.CircuitBreakerState{Level: domain.BreakerAccount, Status: domain.BreakerNormal}
	m.setState(domain.BreakerAccount, "", state)
	m.persist(ctx, state)
	m.log.Info().Msg("account circuit breaker manually reset")
}

// ResetSystem clears the system-tier breaker back to NORMAL.
func (m *Manager) ResetSystem(ctx context.Context) {
	state := domain.CircuitBreakerState{Level: domain.BreakerSystem, Status: domain.BreakerNormal}
	m.setState(domain.BreakerSystem, "", state)
	m.persist(ctx, state)
	m.log.Info().Msg("system circuit breaker manually reset")
}

// Status is a read-only snapshot of all breaker tiers, suitable for
// the /api/v1/status endpoint.
type Status struct {
	Strategy map[string]domain.CircuitBreakerState
	Account  domain.CircuitBreakerState
	System   domain.CircuitBreakerState
}

// GetStatus returns the current state of every tier.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	strategies := make(map[string]domain.CircuitBreakerState, len(m.strategy))
	for k, v := range m.strategy {
		strategies[k] = v
	}
	return Status{Strategy: strategies, Account: m.account, System: m.system}
}
