package domain

import "time"

// BreakerLevel identifies which of the three independent circuit-breaker
// tiers a state belongs to (spec.md §4.4).
type BreakerLevel string

const (
	BreakerStrategy BreakerLevel = "STRATEGY"
	BreakerAccount  BreakerLevel = "ACCOUNT"
	BreakerSystem   BreakerLevel = "SYSTEM"
)

// BreakerStatus is the lifecycle state of one breaker.
type BreakerStatus string

const (
	BreakerNormal     BreakerStatus = "NORMAL"
	BreakerWarning    BreakerStatus = "WARNING"
	BreakerTriggered  BreakerStatus = "TRIGGERED"
	BreakerRecovering BreakerStatus = "RECOVERING"
)

// CircuitBreakerState is persisted durably and restored on process start
// before the Risk Gateway accepts any order (spec.md §3, §4.4).
type CircuitBreakerState struct {
	Level         BreakerLevel  `json:"level"`
	OwnerKey      string        `json:"owner_key,omitempty"` // strategy-id for STRATEGY, empty otherwise
	Status        BreakerStatus `json:"status"`
	TriggeredAt   *time.Time    `json:"triggered_at,omitempty"`
	TriggerReason string        `json:"trigger_reason,omitempty"`
	TriggerValue  float64       `json:"trigger_value"`
	Threshold     float64       `json:"threshold"`
	RecoveringAt  *time.Time    `json:"recovering_at,omitempty"`
}

// Key uniquely identifies a breaker state for persistence lookups.
func (s CircuitBreakerState) Key() string {
	if s.OwnerKey == "" {
		return string(s.Level)
	}
	return string(s.Level) + ":" + s.OwnerKey
}
