package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/domain"
	"github.com/cryptoctl/tradeengine/internal/metrics"
)

// RecordStore persists the Risk Gateway's domain.AuditRecord (spec.md
// §4.1): one append-only row per Submit call, independent of outcome.
// It satisfies risk.AuditStore without internal/risk importing this
// package, keeping the dependency direction audit -> domain only.
type RecordStore struct {
	db *pgxpool.Pool
}

// NewRecordStore builds a RecordStore over the shared connection pool
// the rest of this package already uses for Logger.
func NewRecordStore(db *pgxpool.Pool) *RecordStore {
	return &RecordStore{db: db}
}

// Append persists record. A failure here is fatal to the Risk
// Gateway's Submit call (fail-closed, spec.md §4.1), so this method
// intentionally does no best-effort swallowing of errors the way
// Logger.Log's metrics path does.
func (s *RecordStore) Append(ctx context.Context, record domain.AuditRecord) error {
	start := time.Now()

	original, err := json.Marshal(record.OriginalDecision)
	if err != nil {
		return err
	}
	modified, err := json.Marshal(record.ModifiedDecision)
	if err != nil {
		return err
	}
	account, err := json.Marshal(record.AccountSnapshot)
	if err != nil {
		return err
	}
	rules, err := json.Marshal(record.AppliedRules)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO risk_audit_records (
			id, trace_id, order_id, original_decision, modified_decision,
			risk_check_passed, blocked_reason, applied_rules, account_snapshot, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`
	_, err = s.db.Exec(ctx, query,
		record.ID, record.TraceID, record.OrderID,
		original, modified,
		record.RiskCheckPassed, record.BlockedReason, rules, account, record.Timestamp,
	)

	durationMs := float64(time.Since(start).Milliseconds())
	metrics.RecordAuditLog("RISK_AUDIT_RECORD", err == nil, durationMs)
	if err != nil {
		metrics.RecordAuditLogFailure("persist_error", "RISK_AUDIT_RECORD")
		log.Error().Err(err).Str("order_id", record.OrderID).Msg("failed to persist risk audit record")
		return err
	}
	return nil
}

// EventStore persists domain.Event (spec.md §4.8) from the Event Bus's
// dedicated audit subscriber. It satisfies eventbus.PersistStore.
type EventStore struct {
	db *pgxpool.Pool
}

// NewEventStore builds an EventStore over the shared connection pool.
func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

// AppendEvent persists event. Callers (eventbus.Bus.RunPersistSubscriber)
// treat a failure on a safety-relevant event as fatal; this method just
// reports the error.
func (s *EventStore) AppendEvent(ctx context.Context, event domain.Event) error {
	start := time.Now()

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	id := uuid.New()
	const query = `
		INSERT INTO event_log (
			id, event_type, trace_id, order_id, symbol, payload, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`
	_, err = s.db.Exec(ctx, query, id, string(event.Type), event.TraceID, event.OrderID, event.Symbol, payload, event.Timestamp)

	durationMs := float64(time.Since(start).Milliseconds())
	metrics.RecordAuditLog(string(event.Type), err == nil, durationMs)
	if err != nil {
		metrics.RecordAuditLogFailure("persist_error", string(event.Type))
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to persist event log entry")
		return err
	}
	return nil
}
