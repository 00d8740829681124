package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// BreakerStore is the Postgres-backed implementation of
// breaker.Store: one row per breaker key (STRATEGY:<id>, ACCOUNT,
// SYSTEM), upserted on every transition so a restart restores exactly
// the state the process had before it stopped (spec.md §4.4).
type BreakerStore struct {
	pool *pgxpool.Pool
}

// NewBreakerStore builds a BreakerStore over an existing pool.
func NewBreakerStore(pool *pgxpool.Pool) *BreakerStore {
	return &BreakerStore{pool: pool}
}

// Save upserts state, keyed on its Level/OwnerKey pair.
func (s *BreakerStore) Save(ctx context.Context, state domain.CircuitBreakerState) error {
	const query = `
		INSERT INTO circuit_breaker_state (
			key, level, owner_key, status, triggered_at, trigger_reason,
			trigger_value, threshold, recovering_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (key) DO UPDATE SET
			status = EXCLUDED.status,
			triggered_at = EXCLUDED.triggered_at,
			trigger_reason = EXCLUDED.trigger_reason,
			trigger_value = EXCLUDED.trigger_value,
			threshold = EXCLUDED.threshold,
			recovering_at = EXCLUDED.recovering_at,
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query,
		state.Key(), string(state.Level), state.OwnerKey, string(state.Status),
		state.TriggeredAt, state.TriggerReason, state.TriggerValue, state.Threshold, state.RecoveringAt,
	)
	return err
}

// LoadAll returns every persisted breaker state, for Manager.Restore
// to replay before the Risk Gateway accepts its first order.
func (s *BreakerStore) LoadAll(ctx context.Context) ([]domain.CircuitBreakerState, error) {
	const query = `
		SELECT level, owner_key, status, triggered_at, trigger_reason,
		       trigger_value, threshold, recovering_at
		FROM circuit_breaker_state
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []domain.CircuitBreakerState
	for rows.Next() {
		var (
			level, status                    string
			ownerKey, triggerReason           string
			triggerValue, threshold           float64
			triggeredAt, recoveringAt         *time.Time
		)
		if err := rows.Scan(&level, &ownerKey, &status, &triggeredAt, &triggerReason, &triggerValue, &threshold, &recoveringAt); err != nil {
			return nil, err
		}
		states = append(states, domain.CircuitBreakerState{
			Level:         domain.BreakerLevel(level),
			OwnerKey:      ownerKey,
			Status:        domain.BreakerStatus(status),
			TriggeredAt:   triggeredAt,
			TriggerReason: triggerReason,
			TriggerValue:  triggerValue,
			Threshold:     threshold,
			RecoveringAt:  recoveringAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}
