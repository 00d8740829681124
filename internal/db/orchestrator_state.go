package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// OrchestratorState is a global pause/resume flag for the manual REST
// trade-control surface (spec.md §6): handlePauseTrading/handleResumeTrading
// persist it so a paused state survives an API process restart.
type OrchestratorState struct {
	ID          int        `json:"id"`
	Paused      bool       `json:"paused"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ResumedAt   *time.Time `json:"resumed_at,omitempty"`
	PausedBy    *string    `json:"paused_by,omitempty"`
	PauseReason *string    `json:"pause_reason,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GetOrchestratorState returns the most recent state row, defaulting
// to not-paused when none exists yet.
func (db *DB) GetOrchestratorState(ctx context.Context) (*OrchestratorState, error) {
	query := `
		SELECT id, paused, paused_at, resumed_at, paused_by, pause_reason, updated_at, created_at
		FROM orchestrator_state
		ORDER BY id DESC
		LIMIT 1
	`

	var state OrchestratorState
	err := db.pool.QueryRow(ctx, query).Scan(
		&state.ID,
		&state.Paused,
		&state.PausedAt,
		&state.ResumedAt,
		&state.PausedBy,
		&state.PauseReason,
		&state.UpdatedAt,
		&state.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			now := time.Now()
			return &OrchestratorState{Paused: false, UpdatedAt: now, CreatedAt: now}, nil
		}
		return nil, fmt.Errorf("failed to query orchestrator state: %w", err)
	}

	return &state, nil
}

// SetOrchestratorPaused appends a paused=true row under row-level
// locking so concurrent pause requests (or a second API instance)
// can't both transition from the same stale read.
func (db *DB) SetOrchestratorPaused(ctx context.Context, pausedBy, pauseReason string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	currentPaused, err := lockCurrentPausedState(ctx, tx)
	if err != nil {
		return err
	}
	if currentPaused {
		return fmt.Errorf("trading is already paused")
	}

	const insertQuery = `
		INSERT INTO orchestrator_state (paused, paused_at, paused_by, pause_reason, updated_at, created_at)
		VALUES (TRUE, NOW(), $1, $2, NOW(), NOW())
	`
	if _, err := tx.Exec(ctx, insertQuery, pausedBy, pauseReason); err != nil {
		return fmt.Errorf("failed to insert paused state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pause state: %w", err)
	}
	return nil
}

// SetOrchestratorResumed appends a paused=false row under the same
// locking discipline as SetOrchestratorPaused.
func (db *DB) SetOrchestratorResumed(ctx context.Context) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	currentPaused, err := lockCurrentPausedState(ctx, tx)
	if err != nil {
		return err
	}
	if !currentPaused {
		return fmt.Errorf("trading is not paused")
	}

	const insertQuery = `
		INSERT INTO orchestrator_state (paused, resumed_at, updated_at, created_at)
		VALUES (FALSE, NOW(), NOW(), NOW())
	`
	if _, err := tx.Exec(ctx, insertQuery); err != nil {
		return fmt.Errorf("failed to insert resumed state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit resume state: %w", err)
	}
	return nil
}

// lockCurrentPausedState is a no-row-found-safe initial state: a
// fresh database has no orchestrator_state row, which is "not paused".
func lockCurrentPausedState(ctx context.Context, tx pgx.Tx) (bool, error) {
	const lockQuery = `
		SELECT paused
		FROM orchestrator_state
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`
	var paused bool
	err := tx.QueryRow(ctx, lockQuery).Scan(&paused)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock current state: %w", err)
	}
	return paused, nil
}

// IsTradingPaused reports whether trading is currently paused.
func (db *DB) IsTradingPaused(ctx context.Context) (bool, error) {
	state, err := db.GetOrchestratorState(ctx)
	if err != nil {
		return false, err
	}
	return state.Paused, nil
}
