package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/storage"
	"github.com/tax-ledger/internal/types"
)

// memoryMirror is an in-memory fee mirror keyed by event id
type memoryMirror struct {
	events  map[int64]decimal.Decimal
	batches int
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{events: make(map[int64]decimal.Decimal)}
}

func (m *memoryMirror) Record(ctx context.Context, events ...*models.LedgerEvent) error {
	m.batches++
	for _, ev := range events {
		m.events[ev.ID] = ev.Fee
	}
	return nil
}

func (m *memoryMirror) SumFees(ctx context.Context, window types.TimeWindow) (*storage.FeeTotals, error) {
	totals := &storage.FeeTotals{TotalFeesUSD: decimal.Zero}
	for _, fee := range m.events {
		totals.TotalFeesUSD = totals.TotalFeesUSD.Add(fee)
		totals.FeeEvents++
	}
	return totals, nil
}

func feeEvent(subject, fee string) models.EventInput {
	in := priced("trade", subject, "1", "1")
	in.Fee = dec(fee)
	return in
}

func TestCheckFees(t *testing.T) {
	store := storage.NewMemoryEventStore()
	mirror := newMemoryMirror()
	tax := newTaxService(store).WithFeeRecorder(mirror)
	record(t, tax, feeEvent("a", "10"), feeEvent("b", "2.5"))

	cc := NewConsistencyChecker(store, mirror, quietLogger())

	got, err := cc.CheckFees(context.Background(), types.TimeWindow{})
	require.NoError(t, err)
	assert.True(t, got.Consistent)
	assert.Empty(t, got.Inconsistencies)

	// an append that never reached the mirror
	_, err = store.Append(context.Background(), &models.LedgerEvent{
		Kind: types.KindTrade, Subject: "c", Asset: models.AssetKey{Contract: "x"},
		Quantity: dec("1"), Fee: dec("4"),
	})
	require.NoError(t, err)

	got, err = cc.CheckFees(context.Background(), types.TimeWindow{})
	require.NoError(t, err)
	assert.False(t, got.Consistent)
	assert.Len(t, got.Inconsistencies, 2)
	assert.Equal(t, int64(3), got.LedgerEvents)
	assert.Equal(t, int64(2), got.MirrorEvents)
}

func TestBackfill(t *testing.T) {
	store := storage.NewMemoryEventStore()
	tax := newTaxService(store)
	for i := 0; i < backfillBatchSize+10; i++ {
		record(t, tax, feeEvent(fmt.Sprintf("u%d", i%7), "1"))
	}
	record(t, tax, priced("acquisition", "u0", "1", "1"))

	mirror := newMemoryMirror()
	cc := NewConsistencyChecker(store, mirror, quietLogger())

	res, err := cc.Backfill(context.Background(), types.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, backfillBatchSize+10, res.EventsCopied)
	assert.Equal(t, 2, res.Batches)

	// running it again changes nothing
	_, err = cc.Backfill(context.Background(), types.TimeWindow{})
	require.NoError(t, err)

	check, err := cc.CheckFees(context.Background(), types.TimeWindow{})
	require.NoError(t, err)
	assert.True(t, check.Consistent, check.Inconsistencies)
}
