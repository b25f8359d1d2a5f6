package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/config"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			EventBackend:        config.BackendMemory,
			FeeAnalyticsBackend: config.BackendPostgres,
			RetryAttempts:       1,
			RetryInitialDelay:   time.Millisecond,
		},
		Tax: config.TaxConfig{
			LossHaircut:        decimal.RequireFromString("0.7"),
			SummaryConcurrency: 2,
		},
	}
}

func TestBuild_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, memoryConfig(), logging.NewLogger(logging.LevelError, logging.FormatJSON))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Tax)
	assert.NotNil(t, a.Admin)
	assert.NotNil(t, a.Settlement)
	assert.NotNil(t, a.Broadcaster)
	assert.Nil(t, a.Checker)

	price := decimal.NewFromInt(10)
	_, err = a.Tax.RecordEvent(ctx, models.EventInput{
		Kind:         "trade",
		Subject:      "alice",
		Contract:     "0xabc",
		Quantity:     decimal.NewFromInt(1),
		Fee:          decimal.NewFromInt(2),
		UnitPriceUSD: &price,
	})
	require.NoError(t, err)

	stats, err := a.Admin.GetFeeStats(ctx, types.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, stats.TotalFeesUSD)
	assert.Equal(t, int64(1), stats.FeeEvents)
}

func TestClose_IsIdempotent(t *testing.T) {
	calls := 0
	a := &App{closers: []func(){func() { calls++ }}}
	a.Close()
	a.Close()
	assert.Equal(t, 1, calls)
}
