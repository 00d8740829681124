package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/apperr"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		Base:            1 * time.Millisecond,
		ExponentialBase: 2.0,
		MaxDelay:        20 * time.Millisecond,
	}
}

func TestWithRetry_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesRetryableError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Wrap(apperr.APIError, errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.RiskCheckFailed, "rejected")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	code, ok := apperr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.RiskCheckFailed, code)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return apperr.Wrap(apperr.Timeout, errors.New("timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, fastRetryConfig().MaxAttempts+1, calls)
	code, ok := apperr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.APIError, code)
}

func TestWithRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestBackoffDelay_CapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{Base: 1 * time.Second, ExponentialBase: 10.0, MaxDelay: 2 * time.Second}
	d := backoffDelay(cfg, 5)
	assert.LessOrEqual(t, d, cfg.MaxDelay)
}
