package breaker

import (
	"context"
	"time"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// EmergencyShutdown atomically sets ACCOUNT and SYSTEM to TRIGGERED,
// persists both, and returns allPositions unchanged as the
// position-close list (spec.md §4.4, §5's emergency-shutdown entry
// point). It does not touch strategy-tier state — an emergency halt
// is account/system-wide by definition.
func (m *Manager) EmergencyShutdown(ctx context.Context, reason string, allPositions []domain.Position) []domain.Position {
	now := time.Now()

	account := domain.CircuitBreakerState{
		Level:         domain.BreakerAccount,
		Status:        domain.BreakerTriggered,
		TriggeredAt:   &now,
		TriggerReason: reason,
	}
	system := domain.CircuitBreakerState{
		Level:         domain.BreakerSystem,
		Status:        domain.BreakerTriggered,
		TriggeredAt:   &now,
		TriggerReason: reason,
	}

	m.mu.Lock()
	m.account = account
	m.system = system
	m.mu.Unlock()

	m.persist(ctx, account)
	m.persist(ctx, system)

	m.log.Error().Str("reason", reason).Int("positions_to_close", len(allPositions)).Msg("emergency shutdown triggered")
	return allPositions
}
