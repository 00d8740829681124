package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/api"
	"github.com/cryptoctl/tradeengine/internal/bootstrap"
	"github.com/cryptoctl/tradeengine/internal/config"
)

// main serves the manual REST/WebSocket gateway (spec.md §6) over its
// own bootstrap.Stack, independent of cmd/orchestrator's tick loop.
// Both processes persist breaker state and audit trails to the same
// Postgres/Redis, so either can run alone or alongside the other.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
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

	stack, err := bootstrap.Build(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble trade engine")
	}

	srv := api.NewServer(api.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		DB:           stack.DB,
		RiskGateway:  stack.RiskGW,
		Adapter:      stack.ExecAdapter,
		EventBus:     stack.Events,
		WSProduction: cfg.App.Environment == "production",
	})

	if err := stack.ExecAdapter.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect execution adapter")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping API server")
	}
	_ = stack.ExecAdapter.Disconnect(context.Background())
	stack.Close()

	log.Info().Msg("shutdown complete")
}
