package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/storage"
	"github.com/tax-ledger/internal/types"
)

type stubFees struct {
	totals *storage.FeeTotals
	err    error
	window types.TimeWindow
}

func (s *stubFees) SumFees(ctx context.Context, window types.TimeWindow) (*storage.FeeTotals, error) {
	s.window = window
	return s.totals, s.err
}

func TestGetRevenueSplit(t *testing.T) {
	fees := &stubFees{totals: &storage.FeeTotals{TotalFeesUSD: dec("1000"), FeeEvents: 4}}
	svc := NewAdminService(fees, fastRetry(), quietLogger())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := svc.GetRevenueSplit(context.Background(), types.TimeWindow{From: &from})
	require.NoError(t, err)

	assert.Equal(t, 1000.0, got.TotalFeesUSD)
	assert.Equal(t, 600.0, got.DevShareUSD)
	assert.Equal(t, 300.0, got.ProtocolGrossUSD)
	assert.Equal(t, 15.0, got.ReserveShareUSD)
	assert.Equal(t, 285.0, got.ProtocolNetUSD)
	assert.Equal(t, 100.0, got.StakerShareUSD)
	assert.Equal(t, &from, got.From)
	assert.Nil(t, got.To)
	assert.Equal(t, &from, fees.window.From)
}

func TestGetFeeStats_FromMemoryStore(t *testing.T) {
	store := storage.NewMemoryEventStore()
	tax := newTaxService(store)
	for _, fee := range []string{"0", "1.25", "2.50"} {
		in := priced("trade", "u", "1", "1")
		in.Fee = dec(fee)
		record(t, tax, in)
	}

	svc := NewAdminService(store, fastRetry(), quietLogger())
	got, err := svc.GetFeeStats(context.Background(), types.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, 3.75, got.TotalFeesUSD)
	assert.Equal(t, int64(2), got.FeeEvents)
}

func TestAdmin_RejectsInvertedWindow(t *testing.T) {
	svc := NewAdminService(&stubFees{}, fastRetry(), quietLogger())
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.GetRevenueSplit(context.Background(), types.TimeWindow{From: &from, To: &to})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestAdmin_StoreUnavailable(t *testing.T) {
	fees := &stubFees{err: errors.NewStoreUnavailableError("sum fees", fmt.Errorf("timeout"))}
	svc := NewAdminService(fees, fastRetry(), quietLogger())

	_, err := svc.GetFeeStats(context.Background(), types.TimeWindow{})
	assert.True(t, errors.IsCode(err, errors.CodeStoreUnavailable))
	assert.Equal(t, 503, errors.GetHTTPStatusCode(err))
}
