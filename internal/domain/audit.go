package domain

import "time"

// AuditRecord is the append-only record written for every Risk Gateway
// Submit call (spec.md §3, §4.1 Audit contract).
type AuditRecord struct {
	ID                 string                 `json:"id"`
	TraceID            string                 `json:"trace_id"`
	OrderID            string                 `json:"order_id,omitempty"`
	OriginalDecision   OrderRequest           `json:"original_decision"`
	ModifiedDecision   OrderRequest           `json:"modified_decision"`
	RiskCheckPassed    bool                   `json:"risk_check_passed"`
	BlockedReason      string                 `json:"blocked_reason,omitempty"`
	AppliedRules       []string               `json:"applied_rules"`
	AccountSnapshot    AccountState           `json:"account_snapshot"`
	Timestamp          time.Time              `json:"timestamp"`
}

// IdempotencyRecord backs the duplicate-suppression store (spec.md §3, §4.5).
type IdempotencyRecord struct {
	Key           string    `json:"key"` // truncated SHA-256 hex
	ClientOrderID string    `json:"client_order_id"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
}
