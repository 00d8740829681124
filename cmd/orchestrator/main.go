package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/api"
	"github.com/cryptoctl/tradeengine/internal/bootstrap"
	"github.com/cryptoctl/tradeengine/internal/config"
	"github.com/cryptoctl/tradeengine/internal/domain"
)

// engine drives the autonomous tick loop (spec.md §4.3/§5) over a
// bootstrap.Stack and additionally serves the manual REST/WebSocket
// gateway, so a single-process deployment has both surfaces live.
type engine struct {
	stack *bootstrap.Stack
	api   *api.Server
}

func main() {
	verifyKeys := flag.Bool("verify-keys", false, "Verify API keys and secrets, then exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *verifyKeys {
		os.Exit(verifyAPIKeys())
	}

	log.Info().Msg("starting trade engine orchestrator")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.App.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble trade engine")
	}

	httpSrv := NewHTTPServer(cfg.Gateway.Port+1, eng)
	if err := httpSrv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start health/metrics server")
	}

	go func() {
		if err := eng.api.Start(); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- eng.run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("tick loop exited")
	}

	log.Info().Msg("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := eng.api.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping API server")
	}
	if err := httpSrv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping health server")
	}
	eng.stack.Close()

	log.Info().Msg("shutdown complete")
}

// buildEngine assembles the shared control-plane Stack and wraps it
// with the manual REST/WebSocket gateway this binary also serves.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	stack, err := bootstrap.Build(ctx, cfg, log.Logger)
	if err != nil {
		return nil, err
	}

	apiSrv := api.NewServer(api.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		DB:           stack.DB,
		RiskGateway:  stack.RiskGW,
		Adapter:      stack.ExecAdapter,
		EventBus:     stack.Events,
		WSProduction: cfg.App.Environment == "production",
	})

	return &engine{stack: stack, api: apiSrv}, nil
}

// run is the tick loop (spec.md §4.3/§5): every TickInterval, fetch
// market state per symbol, run the Decision Coordinator, and submit
// the resulting decision through the Risk Gateway.
func (e *engine) run(ctx context.Context) error {
	if err := e.stack.ExecAdapter.Connect(ctx); err != nil {
		return fmt.Errorf("connect execution adapter: %w", err)
	}
	defer e.stack.ExecAdapter.Disconnect(context.Background())

	go e.stack.Sweeper.Run(ctx)

	ticker := time.NewTicker(e.stack.Config.Trading.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tick(ctx)
			e.stack.Bars.NextTick()
		}
	}
}

func (e *engine) tick(ctx context.Context) {
	log := e.stack.Log
	account, err := e.stack.ExecAdapter.GetBalance(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read account state")
		return
	}

	for _, symbol := range e.stack.Config.Trading.Symbols {
		state, err := e.stack.MarketSvc.GetMarketState(ctx, symbol, e.stack.Bars.CurrentBarIndex())
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("market state fetch failed, skipping symbol this tick")
			continue
		}
		e.stack.Bars.SetBar(symbol, domain.Candle{
			OpenTime: state.Timestamp,
			Close:    state.Price,
		})

		traceID := bootstrap.NewTraceID()
		decision := e.stack.Coord.Decide(ctx, state, account, symbol, "default", traceID)
		if decision.Action == domain.ActionHold {
			continue
		}

		req := bootstrap.DecisionToOrderRequest(decision, state)
		order, err := e.stack.RiskGW.Submit(ctx, req, account)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("risk gateway submit failed")
			continue
		}

		e.stack.Tracker.Track(order)
		e.publishOrderEvent(order)
	}
}

func (e *engine) publishOrderEvent(order *domain.Order) {
	evtType := domain.EventOrderSubmitted
	switch order.Status {
	case domain.StatusRejected:
		evtType = domain.EventOrderRejected
	case domain.StatusFilled:
		evtType = domain.EventOrderFilled
	}
	e.stack.Events.Publish(domain.Event{
		Type:      evtType,
		TraceID:   order.TraceID,
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"order": order},
	})
}
