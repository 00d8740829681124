// Package config loads the structured runtime configuration (spec.md §6)
// via viper: exchange credentials, risk limits, storage endpoints, the
// administrative gateway, and notification sinks. Lower bounds on risk
// limits are compiled floors (floors.go) that loaded values are clamped
// against; a config cannot loosen past them.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Exchange       ExchangeConfig       `mapstructure:"exchange"`
	AI             AIConfig             `mapstructure:"ai"`
	Risk           RiskConfig           `mapstructure:"risk"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Trading        TradingConfig        `mapstructure:"trading"`
	Network        NetworkConfig        `mapstructure:"network"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ExchangeConfig selects and authenticates the exchange adapter
// (spec.md §6).
type ExchangeConfig struct {
	Name       string `mapstructure:"name"` // "binance", "simulated"
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Testnet    bool   `mapstructure:"testnet"`
	Passphrase string `mapstructure:"passphrase"`

	Fees FeeConfig `mapstructure:"fees"`
}

// FeeConfig parameterizes the Simulated adapter's fill model
// (spec.md §4.2).
type FeeConfig struct {
	Maker        float64 `mapstructure:"maker"`
	Taker        float64 `mapstructure:"taker"`
	BaseSlippage float64 `mapstructure:"base_slippage"`
	ImpactCoef   float64 `mapstructure:"impact_coef"`
	MaxSlippage  float64 `mapstructure:"max_slippage"`
}

// AIConfig is passed to LLM-backed agents if any; its absence (empty
// BaseURL) falls back to rule-based agents (spec.md §6).
type AIConfig struct {
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// Enabled reports whether an LLM backend is configured.
func (c AIConfig) Enabled() bool { return c.BaseURL != "" }

// RiskConfig feeds the Risk Gateway (spec.md §6, §4.1).
type RiskConfig struct {
	RiskLevel               string   `mapstructure:"risk_level"` // low|medium|high
	SoftMode                bool     `mapstructure:"soft_mode"`  // clamp-instead-of-reject for rules 4-10
	MaxPositionPct          float64  `mapstructure:"max_position_pct"`
	MaxLeverage             float64  `mapstructure:"max_leverage"`
	MaxSingleSymbolExposure float64  `mapstructure:"max_single_symbol_exposure"`
	MaxTotalExposure        float64  `mapstructure:"max_total_exposure"`
	MaxOpenPositions        int      `mapstructure:"max_open_positions"`
	MinStopLossPct          float64  `mapstructure:"min_stop_loss_pct"`
	MaxStopLossPct          float64  `mapstructure:"max_stop_loss_pct"`
	MaxTakeProfitPct        float64  `mapstructure:"max_take_profit_pct"`
	MaxDailyLossPct         float64  `mapstructure:"max_daily_loss_pct"`
	MaxDailyTrades          int      `mapstructure:"max_daily_trades"`
	DrawdownTriggerPct      float64  `mapstructure:"drawdown_trigger_pct"`
	DenyList                []string `mapstructure:"deny_list"`
	BlackoutHoursUTC        []int    `mapstructure:"blackout_hours_utc"`
	DustNotional            float64  `mapstructure:"dust_notional"`
}

// CircuitBreakerConfig configures the three-tier breaker (spec.md §4.4).
type CircuitBreakerConfig struct {
	ManualRecover             bool    `mapstructure:"manual_recover"`
	AutoRecoverMinutes        int     `mapstructure:"auto_recover_minutes"`
	StrategyDailyLossPct      float64 `mapstructure:"strategy_daily_loss_pct"`
	StrategyConsecutiveLosses int     `mapstructure:"strategy_consecutive_losses"`
	AccountDailyLossPct       float64 `mapstructure:"account_daily_loss_pct"`
	AccountDrawdownPct        float64 `mapstructure:"account_drawdown_pct"`
	SystemVolatilityPct       float64 `mapstructure:"system_volatility_pct"`
	SystemAPIFailures         int     `mapstructure:"system_api_failures"`
	SystemPanicSellRatio      float64 `mapstructure:"system_panic_sell_ratio"`
}

// StorageConfig holds persistence endpoints (spec.md §6).
type StorageConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	DataDir     string `mapstructure:"data_dir"`
	LogDir      string `mapstructure:"log_dir"`
}

// GatewayConfig is the administrative HTTP/WS surface (spec.md §6).
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns "host:port" for the gateway listener.
func (c GatewayConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// NotificationConfig enumerates notification sinks by kind (spec.md §6).
type NotificationConfig struct {
	Telegram TelegramSinkConfig `mapstructure:"telegram"`
	Email    EmailSinkConfig    `mapstructure:"email"`
	Log      LogSinkConfig      `mapstructure:"log"`
	Push     PushSinkConfig     `mapstructure:"push"`
}

type TelegramSinkConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type EmailSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	To      string `mapstructure:"to"`
}

type LogSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type PushSinkConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// TradingConfig selects symbols, mode, and the Decision Coordinator's
// timing (spec.md §4.3, §5).
type TradingConfig struct {
	Mode            string        `mapstructure:"mode"` // "paper" or "live"
	Symbols         []string      `mapstructure:"symbols"`
	InitialCapital  float64       `mapstructure:"initial_capital"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	AgentDeadline   time.Duration `mapstructure:"agent_deadline"`
	DebateEnabled   bool          `mapstructure:"debate_enabled"`
	DebateMaxRounds int           `mapstructure:"debate_max_rounds"`
	AgentWeights    AgentWeights  `mapstructure:"agent_weights"`
}

// AgentWeights is the weighted-vote aggregation table (spec.md §4.3).
// The sum must equal 1.0; DefaultAgentWeights is the authoritative table
// per Design Notes open question 2 (the copy with the Risk veto).
type AgentWeights struct {
	Market    float64 `mapstructure:"market"`
	Strategy  float64 `mapstructure:"strategy"`
	Risk      float64 `mapstructure:"risk"`
	OnChain   float64 `mapstructure:"on_chain"`
	Sentiment float64 `mapstructure:"sentiment"`
	Macro     float64 `mapstructure:"macro"`
}

// DefaultAgentWeights returns the normative weighted-vote table.
func DefaultAgentWeights() AgentWeights {
	return AgentWeights{Market: 0.25, Strategy: 0.20, Risk: 0.25, OnChain: 0.10, Sentiment: 0.10, Macro: 0.10}
}

// NetworkConfig configures the Network Resilience layer (spec.md §4.6).
type NetworkConfig struct {
	QueryTimeout                   time.Duration `mapstructure:"query_timeout"`
	OrderTimeout                   time.Duration `mapstructure:"order_timeout"`
	RetryBase                      time.Duration `mapstructure:"retry_base"`
	RetryExponentialBase           float64       `mapstructure:"retry_exponential_base"`
	RetryMaxDelay                  time.Duration `mapstructure:"retry_max_delay"`
	RetryMaxAttempts               int           `mapstructure:"retry_max_attempts"`
	RequestsPerMinute               int           `mapstructure:"requests_per_minute"`
	BurstLimit                      int           `mapstructure:"burst_limit"`
	HangingOrderThresholdSeconds    int           `mapstructure:"hanging_order_threshold_seconds"`
	HangingOrderCleanupIntervalSecs int           `mapstructure:"hanging_order_cleanup_interval_seconds"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TRADER")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Risk = ClampToFloors(cfg.Risk)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "trader")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("exchange.name", "simulated")
	v.SetDefault("exchange.testnet", true)
	v.SetDefault("exchange.fees.maker", 0.001)
	v.SetDefault("exchange.fees.taker", 0.001)
	v.SetDefault("exchange.fees.base_slippage", 0.0005)
	v.SetDefault("exchange.fees.impact_coef", 0.0001)
	v.SetDefault("exchange.fees.max_slippage", 0.003)

	v.SetDefault("risk.risk_level", "medium")
	v.SetDefault("risk.max_position_pct", 0.10)
	v.SetDefault("risk.max_leverage", 3.0)
	v.SetDefault("risk.max_single_symbol_exposure", 0.20)
	v.SetDefault("risk.max_total_exposure", 0.60)
	v.SetDefault("risk.max_open_positions", 5)
	v.SetDefault("risk.min_stop_loss_pct", 0.01)
	v.SetDefault("risk.max_stop_loss_pct", 0.15)
	v.SetDefault("risk.max_take_profit_pct", 0.30)
	v.SetDefault("risk.max_daily_loss_pct", 0.10)
	v.SetDefault("risk.max_daily_trades", 50)
	v.SetDefault("risk.drawdown_trigger_pct", 0.20)
	v.SetDefault("risk.dust_notional", 10.0)

	v.SetDefault("circuit_breaker.auto_recover_minutes", 30)
	v.SetDefault("circuit_breaker.strategy_daily_loss_pct", 0.05)
	v.SetDefault("circuit_breaker.strategy_consecutive_losses", 5)
	v.SetDefault("circuit_breaker.account_daily_loss_pct", 0.10)
	v.SetDefault("circuit_breaker.account_drawdown_pct", 0.20)
	v.SetDefault("circuit_breaker.system_volatility_pct", 0.20)
	v.SetDefault("circuit_breaker.system_api_failures", 5)
	v.SetDefault("circuit_breaker.system_panic_sell_ratio", 0.15)

	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.log_dir", "./logs")

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8081)

	v.SetDefault("notification.log.enabled", true)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("trading.initial_capital", 10000.0)
	v.SetDefault("trading.tick_interval", "30s")
	v.SetDefault("trading.agent_deadline", "2s")
	v.SetDefault("trading.debate_enabled", false)
	v.SetDefault("trading.debate_max_rounds", 3)
	w := DefaultAgentWeights()
	v.SetDefault("trading.agent_weights.market", w.Market)
	v.SetDefault("trading.agent_weights.strategy", w.Strategy)
	v.SetDefault("trading.agent_weights.risk", w.Risk)
	v.SetDefault("trading.agent_weights.on_chain", w.OnChain)
	v.SetDefault("trading.agent_weights.sentiment", w.Sentiment)
	v.SetDefault("trading.agent_weights.macro", w.Macro)

	v.SetDefault("network.query_timeout", "30s")
	v.SetDefault("network.order_timeout", "60s")
	v.SetDefault("network.retry_base", "100ms")
	v.SetDefault("network.retry_exponential_base", 2.0)
	v.SetDefault("network.retry_max_delay", "5s")
	v.SetDefault("network.retry_max_attempts", 3)
	v.SetDefault("network.requests_per_minute", 1200)
	v.SetDefault("network.burst_limit", 20)
	v.SetDefault("network.hanging_order_threshold_seconds", 1800)
	v.SetDefault("network.hanging_order_cleanup_interval_seconds", 300)
}
