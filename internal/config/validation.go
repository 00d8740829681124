package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs comprehensive configuration validation.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateExchange()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateCircuitBreaker()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateGateway()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateNetwork()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors
	if c.App.Name == "" {
		errors = append(errors, ValidationError{"app.name", "application name is required"})
	}
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		errors = append(errors, ValidationError{"app.environment", "must be one of development, staging, production"})
	}
	return errors
}

func (c *Config) validateExchange() ValidationErrors {
	var errors ValidationErrors
	if c.Exchange.Name == "" {
		errors = append(errors, ValidationError{"exchange.name", "exchange name is required"})
	}
	if c.App.Environment == "production" && c.Exchange.Name != "simulated" {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			errors = append(errors, ValidationError{"exchange.api_key", "api_key/api_secret required for a live exchange in production"})
		}
	}
	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors
	r := c.Risk

	if r.MaxPositionPct <= 0 || r.MaxPositionPct > floorMaxPositionPct {
		errors = append(errors, ValidationError{"risk.max_position_pct", fmt.Sprintf("must be in (0, %.2f]", floorMaxPositionPct)})
	}
	if r.MaxLeverage < 1 || r.MaxLeverage > floorMaxLeverage {
		errors = append(errors, ValidationError{"risk.max_leverage", fmt.Sprintf("must be in [1, %.1f]", floorMaxLeverage)})
	}
	if r.MinStopLossPct < floorMinStopLossPctFloor {
		errors = append(errors, ValidationError{"risk.min_stop_loss_pct", fmt.Sprintf("must be >= %.4f", floorMinStopLossPctFloor)})
	}
	if r.MaxStopLossPct <= r.MinStopLossPct {
		errors = append(errors, ValidationError{"risk.max_stop_loss_pct", "must exceed min_stop_loss_pct"})
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct > floorMaxDailyLossPct {
		errors = append(errors, ValidationError{"risk.max_daily_loss_pct", fmt.Sprintf("must be in (0, %.2f]", floorMaxDailyLossPct)})
	}
	if r.MaxOpenPositions < 1 {
		errors = append(errors, ValidationError{"risk.max_open_positions", "must be >= 1"})
	}
	if r.DrawdownTriggerPct <= 0 || r.DrawdownTriggerPct > floorDrawdownTriggerPct {
		errors = append(errors, ValidationError{"risk.drawdown_trigger_pct", fmt.Sprintf("must be in (0, %.2f]", floorDrawdownTriggerPct)})
	}
	validLevels := map[string]bool{"low": true, "medium": true, "high": true}
	if !validLevels[r.RiskLevel] {
		errors = append(errors, ValidationError{"risk.risk_level", "must be one of low, medium, high"})
	}
	for _, h := range r.BlackoutHoursUTC {
		if h < 0 || h > 23 {
			errors = append(errors, ValidationError{"risk.blackout_hours_utc", "hours must be in [0, 23]"})
			break
		}
	}
	return errors
}

func (c *Config) validateCircuitBreaker() ValidationErrors {
	var errors ValidationErrors
	cb := c.CircuitBreaker
	if cb.AutoRecoverMinutes < 0 {
		errors = append(errors, ValidationError{"circuit_breaker.auto_recover_minutes", "must be >= 0"})
	}
	if cb.StrategyConsecutiveLosses < 1 {
		errors = append(errors, ValidationError{"circuit_breaker.strategy_consecutive_losses", "must be >= 1"})
	}
	if cb.SystemAPIFailures < 1 {
		errors = append(errors, ValidationError{"circuit_breaker.system_api_failures", "must be >= 1"})
	}
	return errors
}

func (c *Config) validateStorage() ValidationErrors {
	var errors ValidationErrors
	if c.App.Environment == "production" && c.Storage.DatabaseURL == "" {
		errors = append(errors, ValidationError{"storage.database_url", "database_url is required in production"})
	}
	return errors
}

func (c *Config) validateGateway() ValidationErrors {
	var errors ValidationErrors
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errors = append(errors, ValidationError{"gateway.port", "must be a valid TCP port"})
	}
	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors
	if len(c.Trading.Symbols) == 0 {
		errors = append(errors, ValidationError{"trading.symbols", "at least one symbol is required"})
	}
	validModes := map[string]bool{"paper": true, "live": true}
	if !validModes[c.Trading.Mode] {
		errors = append(errors, ValidationError{"trading.mode", "must be paper or live"})
	}
	w := c.Trading.AgentWeights
	sum := w.Market + w.Strategy + w.Risk + w.OnChain + w.Sentiment + w.Macro
	if sum < 0.99 || sum > 1.01 {
		errors = append(errors, ValidationError{"trading.agent_weights", fmt.Sprintf("weights must sum to 1.0, got %.4f", sum)})
	}
	if c.Trading.DebateMaxRounds < 0 || c.Trading.DebateMaxRounds > 3 {
		errors = append(errors, ValidationError{"trading.debate_max_rounds", "must be in [0, 3]"})
	}
	return errors
}

func (c *Config) validateNetwork() ValidationErrors {
	var errors ValidationErrors
	n := c.Network
	if n.RetryMaxAttempts < 0 {
		errors = append(errors, ValidationError{"network.retry_max_attempts", "must be >= 0"})
	}
	if n.RequestsPerMinute <= 0 {
		errors = append(errors, ValidationError{"network.requests_per_minute", "must be > 0"})
	}
	if n.HangingOrderThresholdSeconds <= 0 {
		errors = append(errors, ValidationError{"network.hanging_order_threshold_seconds", "must be > 0"})
	}
	return errors
}
