// Package bootstrap assembles the wired control plane shared by every
// cmd/* entrypoint: Risk Gateway -> Idempotency -> Network Resilience
// -> Execution Adapter, plus the Market-Data Service, Decision
// Coordinator, Event Bus and hanging-order sweeper around them
// (spec.md §4). cmd/orchestrator drives the autonomous tick loop over
// this Stack; cmd/api serves the manual REST/WebSocket surface over
// its own independently-built Stack, both persisting to and restoring
// from the same Postgres/Redis so breaker state and audit trails stay
// consistent across processes.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cryptoctl/tradeengine/internal/adapter"
	"github.com/cryptoctl/tradeengine/internal/audit"
	"github.com/cryptoctl/tradeengine/internal/breaker"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/coordinator"
	"github.com/cryptoctl/tradeengine/internal/db"
	"github.com/cryptoctl/tradeengine/internal/eventbus"
	"github.com/cryptoctl/tradeengine/internal/idempotency"
	"github.com/cryptoctl/tradeengine/internal/llm"
	"github.com/cryptoctl/tradeengine/internal/market"
	"github.com/cryptoctl/tradeengine/internal/resilience"
	"github.com/cryptoctl/tradeengine/internal/risk"
	"github.com/cryptoctl/tradeengine/internal/strategy"
)

// Stack bundles every long-lived component an entrypoint needs. Not
// every field is used by every binary: cmd/api never ticks, so it
// ignores MarketSvc/Coord/Sweeper/Bars/Tracker, but still pays the
// (cheap) cost of constructing them so the two entrypoints stay
// symmetric rather than forking the wiring code.
type Stack struct {
	Config      *config.Config
	Log         zerolog.Logger
	DB          *db.DB
	Redis       *redis.Client
	BreakerMgr  *breaker.Manager
	RiskGW      *risk.Gateway
	ExecAdapter adapter.Adapter
	MarketSvc   *market.Service
	Coord       *coordinator.Coordinator
	Events      *eventbus.Bus
	Sweeper     *resilience.HangingOrderSweeper
	Bars        *BarSource
	Tracker     *OrderTracker
}

// Build wires every component in dependency order: persistence and
// resilience primitives first, then the components that depend on
// them. Callers own eventStore persistence (started here in its own
// goroutine) and the returned Stack's lifetime; Close releases what
// Build opened.
func Build(ctx context.Context, cfg *config.Config, l zerolog.Logger) (*Stack, error) {
	database, err := db.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	breakers := resilience.NewServiceBreakers()
	breakers.RegisterService("exchange", resilience.DefaultExchangeSettings())
	breakers.RegisterService("database", resilience.DefaultDatabaseSettings())

	limiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		RequestsPerMinute: cfg.Network.RequestsPerMinute,
		BurstLimit:        cfg.Network.BurstLimit,
	})
	retryCfg := resilience.RetryConfig{
		MaxAttempts:     cfg.Network.RetryMaxAttempts,
		Base:            cfg.Network.RetryBase,
		ExponentialBase: cfg.Network.RetryExponentialBase,
		MaxDelay:        cfg.Network.RetryMaxDelay,
	}

	breakerThresholds := breaker.Thresholds{
		StrategyMaxDailyLossPct:   cfg.CircuitBreaker.StrategyDailyLossPct,
		StrategyConsecutiveLosses: cfg.CircuitBreaker.StrategyConsecutiveLosses,
		AccountMaxDailyLossPct:    cfg.CircuitBreaker.AccountDailyLossPct,
		AccountMaxDrawdownPct:     cfg.CircuitBreaker.AccountDrawdownPct,
		SystemVolatilityThreshold: cfg.CircuitBreaker.SystemVolatilityPct,
		SystemAPIFailureThreshold: cfg.CircuitBreaker.SystemAPIFailures,
		SystemPanicSellRatio:      cfg.CircuitBreaker.SystemPanicSellRatio,
		AutoRecoverMinutes:        cfg.CircuitBreaker.AutoRecoverMinutes,
		ManualRecoverRequired:     cfg.CircuitBreaker.ManualRecover,
	}
	breakerStore := db.NewBreakerStore(database.Pool())
	breakerMgr := breaker.NewManager(breakerThresholds, breakerStore, l)
	if err := breakerMgr.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore circuit breaker state: %w", err)
	}

	idempotencyStore := idempotency.NewStore(redisClient, 24, 5*time.Second)

	bars := newBarSource()
	tracker := newOrderTracker()

	var execAdapter adapter.Adapter
	switch cfg.Exchange.Name {
	case "binance":
		execAdapter = adapter.NewBinanceAdapter(adapter.BinanceConfig{
			APIKey:    cfg.Exchange.APIKey,
			APISecret: cfg.Exchange.APISecret,
			Testnet:   cfg.Exchange.Testnet,
		}, breakers, limiter, retryCfg, l)
	default:
		execAdapter = adapter.NewSimulated(cfg.Exchange.Fees, bars, adapter.LatencyModel{
			MinDelay: 50 * time.Millisecond,
			MaxDelay: 400 * time.Millisecond,
		}, l)
	}

	binanceClient := binancesdk.NewClient("", "")
	if cfg.Exchange.Testnet {
		binancesdk.UseTestnet = true
	}
	candleFetcher := market.NewBinanceCandleFetcher(binanceClient, breakers, limiter, retryCfg)
	ohlcvCache := market.NewOHLCVCache(redisClient, l)

	var aux market.AuxiliaryProvider
	if cgClient, err := market.NewCoinGeckoClient(""); err == nil {
		cached := market.NewCachedCoinGeckoClient(cgClient, redisClient, 5*time.Minute)
		priceCache := market.NewRedisPriceCache(redisClient, 5*time.Minute)
		aux = market.NewCoinGeckoAuxiliaryProvider(cached, priceCache, l)
	} else {
		l.Warn().Err(err).Msg("coingecko client unavailable, auxiliary data will use neutral defaults")
	}

	marketSvc := market.NewService(candleFetcher, ohlcvCache, aux, l)

	agents := buildAgents(cfg, l)
	coord := coordinator.New(agents, cfg.Trading.AgentWeights, cfg.Risk, cfg.Trading.AgentDeadline, cfg.Trading.DebateMaxRounds, l)

	events, err := eventbus.New(eventbus.Config{}, l)
	if err != nil {
		return nil, fmt.Errorf("build event bus: %w", err)
	}
	eventStore := audit.NewEventStore(database.Pool())
	go events.RunPersistSubscriber(ctx, eventStore, 256)

	auditRecords := audit.NewRecordStore(database.Pool())
	riskGW := risk.NewGateway(cfg.Risk, breakerMgr, idempotencyStore, execAdapter, auditRecords, l)

	sweeper := resilience.NewHangingOrderSweeper(resilience.SweeperConfig{
		ThresholdSeconds:       cfg.Network.HangingOrderThresholdSeconds,
		CleanupIntervalSeconds: cfg.Network.HangingOrderCleanupIntervalSecs,
	}, tracker, execAdapter, l)

	return &Stack{
		Config:      cfg,
		Log:         l,
		DB:          database,
		Redis:       redisClient,
		BreakerMgr:  breakerMgr,
		RiskGW:      riskGW,
		ExecAdapter: execAdapter,
		MarketSvc:   marketSvc,
		Coord:       coord,
		Events:      events,
		Sweeper:     sweeper,
		Bars:        bars,
		Tracker:     tracker,
	}, nil
}

// buildAgents assembles the weighted-vote agent set (spec.md §4.3).
// An LLM-backed strategy agent is wired only when cfg.AI supplies a
// base URL; otherwise every agent is rule-based.
func buildAgents(cfg *config.Config, l zerolog.Logger) []coordinator.Agent {
	defaultStrategy := strategy.NewDefaultStrategy("default")

	var strategyAgent coordinator.Agent = coordinator.NewStrategyAgent(defaultStrategy)
	if cfg.AI.Enabled() {
		client := llm.NewClient(llm.ClientConfig{
			Endpoint:    cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		})
		breakers := resilience.NewServiceBreakers()
		breakers.RegisterService("llm", resilience.DefaultExchangeSettings())
		strategyAgent = coordinator.NewLLMAgent(strategyAgent, client, breakers)
	}

	return []coordinator.Agent{
		coordinator.NewTechnicalAgent(),
		strategyAgent,
		coordinator.NewRiskAgent(),
		coordinator.NewOnChainAgent(),
		coordinator.NewSentimentAgent(),
		coordinator.NewMacroAgent(),
	}
}

// Close releases everything Build opened. The Event Bus's in-process
// subscribers are left for callers to Unsubscribe themselves.
func (s *Stack) Close() {
	s.Events.Close()
	s.DB.Close()
}
