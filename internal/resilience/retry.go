// Package resilience implements the Network Resilience layer (spec.md
// §4.6): retry with backoff, per-key rate limiting, per-service circuit
// breaking, and the hanging-order sweeper. Every outbound call the
// Execution Adapter and Market-Data Service make to an external system
// passes through here.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoctl/tradeengine/internal/apperr"
)

// RetryConfig configures exponential backoff retry.
type RetryConfig struct {
	MaxAttempts     int
	Base            time.Duration
	ExponentialBase float64
	MaxDelay        time.Duration
}

// DefaultRetryConfig matches spec.md §4.6's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		Base:            200 * time.Millisecond,
		ExponentialBase: 2.0,
		MaxDelay:        10 * time.Second,
	}
}

// Operation is a unit of work that may fail retryably.
type Operation func(ctx context.Context) error

// WithRetry runs op, retrying on retryable errors with exponential
// backoff plus jitter: delay = base * exponential_base^attempt ± jitter,
// capped at max_delay. Non-retryable errors (per apperr.Retryable)
// return immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, op Operation) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.WrapMsg(apperr.Timeout, "operation cancelled", err)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info().Int("attempt", attempt+1).Msg("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !apperr.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxAttempts+1).
			Dur("delay", delay).
			Msg("retrying after backoff")

		select {
		case <-ctx.Done():
			return apperr.WrapMsg(apperr.Timeout, "operation cancelled during backoff", ctx.Err())
		case <-time.After(delay):
		}
	}

	return apperr.WrapMsg(apperr.APIError, "operation failed after retries", lastErr)
}

// backoffDelay computes base * exponential_base^attempt with ±jitter,
// capped at MaxDelay. Jitter is up to 20% of the nominal delay in
// either direction, so repeated retries across many callers don't
// synchronize.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	nominal := float64(cfg.Base)
	for i := 0; i < attempt; i++ {
		nominal *= cfg.ExponentialBase
	}
	jitterRange := nominal * 0.2
	jittered := nominal + (rand.Float64()*2-1)*jitterRange
	if jittered < 0 {
		jittered = 0
	}
	d := time.Duration(jittered)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}
