package main

import (
	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/config"
)

// verifyAPIKeys checks that exchange and LLM credentials are present
// and non-placeholder before a live run. Returns 0 if everything
// required for the configured mode is valid, 1 otherwise.
func verifyAPIKeys() int {
	log.Info().Msg("verifying API keys and configuration")

	cfg, err := config.Load("")
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	allValid := true

	if cfg.Exchange.Name == "binance" {
		if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
			log.Error().Str("exchange", cfg.Exchange.Name).Msg("exchange API key/secret not configured")
			allValid = false
		} else {
			log.Info().Str("exchange", cfg.Exchange.Name).Bool("testnet", cfg.Exchange.Testnet).Msg("exchange credentials present")
		}
	} else {
		log.Info().Str("exchange", cfg.Exchange.Name).Msg("non-binance adapter, no exchange credentials required")
	}

	if cfg.AI.Enabled() {
		if cfg.AI.APIKey == "" {
			log.Warn().Msg("AI base_url configured without an api_key")
		}
		log.Info().Str("model", cfg.AI.Model).Str("base_url", cfg.AI.BaseURL).Msg("LLM configuration present")
	} else {
		log.Info().Msg("no LLM backend configured, agents run rule-based")
	}

	if cfg.Storage.DatabaseURL == "" {
		log.Warn().Msg("storage.database_url not set, relying on DATABASE_URL env var")
	}

	if allValid {
		log.Info().Msg("configuration verified successfully")
		return 0
	}
	log.Error().Msg("configuration invalid, see above")
	return 1
}
