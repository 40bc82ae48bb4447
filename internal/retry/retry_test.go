package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func fastConfig(attempts int) *Config {
	return &Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.False(t, result.Exhausted)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		return errTransient
	})

	assert.False(t, result.Success)
	assert.True(t, result.Exhausted)
	assert.Equal(t, 2, result.Attempts)
	assert.ErrorIs(t, result.LastError, errTransient)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return errors.Is(err, errTransient) }

	result := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		return permanent
	})

	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.Exhausted)
	assert.ErrorIs(t, result.LastError, permanent)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1}

	result := Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		cancel()
		return errTransient
	})

	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 20*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 35*time.Millisecond, calculateDelay(cfg, 3))
	assert.Equal(t, time.Duration(0), calculateDelay(&Config{}, 4))
}
