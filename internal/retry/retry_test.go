package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/errors"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff_RetriesStoreUnavailable(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.NewStoreUnavailableError("list", stderrors.New("conn reset"))
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoff_DoesNotRetryValidation(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return errors.NewValidationError("quantity", "must be positive")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsCode(result.LastError, errors.CodeValidation))
}

func TestWithExponentialBackoff_GivesUp(t *testing.T) {
	result := WithExponentialBackoff(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		return errors.NewStoreUnavailableError("append", stderrors.New("down"))
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, errors.IsRetryable(result.LastError), "last error keeps its category")
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		return errors.NewStoreUnavailableError("list", stderrors.New("down"))
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(cfg, 3))
}

func TestDo(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastConfig(3), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.NewStoreUnavailableError("list", stderrors.New("blip"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, attempts)
}
