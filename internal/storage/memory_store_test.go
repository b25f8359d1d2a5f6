package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

func newEvent(subject string, fee string) *models.LedgerEvent {
	price := decimal.NewFromInt(10)
	return &models.LedgerEvent{
		Kind:         types.KindAcquisition,
		Subject:      subject,
		Asset:        models.AssetKey{Contract: "0xnft", TokenID: "1"},
		Quantity:     decimal.NewFromInt(1),
		Fee:          decimal.RequireFromString(fee),
		UnitPriceUSD: &price,
	}
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestMemoryEventStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryEventStoreWithClock(clock.Now)
	ctx := testContext(t)

	first, err := store.Append(ctx, newEvent("alice", "0"))
	require.NoError(t, err)
	second, err := store.Append(ctx, newEvent("alice", "0"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestMemoryEventStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := testContext(t)

	ev := newEvent("alice", "0")
	stored, err := store.Append(ctx, ev)
	require.NoError(t, err)

	*stored.UnitPriceUSD = decimal.NewFromInt(999)
	ev.Subject = "mallory"

	events, err := store.ListBySubject(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].UnitPriceUSD.Equal(decimal.NewFromInt(10)))
}

func TestMemoryEventStore_ClockSteppingBackwardsKeepsOrder(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryEventStoreWithClock(clock.Now)
	ctx := testContext(t)

	_, err := store.Append(ctx, newEvent("alice", "0"))
	require.NoError(t, err)

	clock.Set(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err = store.Append(ctx, newEvent("alice", "0"))
	require.NoError(t, err)

	events, err := store.ListBySubject(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(2), events[1].ID)
}

func TestMemoryEventStore_ConcurrentAppendsStayOrdered(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := testContext(t)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := store.Append(ctx, newEvent("alice", "0"))
				assert.NoError(t, err)
			}
		}()
	}

	// readers interleave with writers and must always see an ordered prefix
	for r := 0; r < 20; r++ {
		events, err := store.ListBySubject(ctx, "alice")
		require.NoError(t, err)
		for i := 1; i < len(events); i++ {
			prev, cur := events[i-1], events[i]
			ordered := prev.Timestamp.Before(cur.Timestamp) ||
				(prev.Timestamp.Equal(cur.Timestamp) && prev.ID < cur.ID)
			require.True(t, ordered, "events %d and %d out of order", prev.ID, cur.ID)
		}
	}

	wg.Wait()
	assert.Equal(t, writers*perWriter, store.Len())
}

func TestMemoryEventStore_ListIsPerSubject(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := testContext(t)

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, newEvent(fmt.Sprintf("user-%d", i%2), "0"))
		require.NoError(t, err)
	}

	events, err := store.ListBySubject(ctx, "user-0")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	none, err := store.ListBySubject(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryEventStore_Fingerprint(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := testContext(t)

	fp, err := store.Fingerprint(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Fingerprint{}, fp)

	_, _ = store.Append(ctx, newEvent("bob", "0"))
	_, _ = store.Append(ctx, newEvent("alice", "0"))

	fp, err = store.Fingerprint(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Fingerprint{Count: 1, MaxID: 2}, fp)

	events, _ := store.ListBySubject(ctx, "alice")
	assert.Equal(t, fp, FingerprintOf(events))
}

func TestMemoryEventStore_SumFees(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryEventStoreWithClock(clock.Now)
	ctx := testContext(t)

	_, _ = store.Append(ctx, newEvent("alice", "10")) // 00:00:01
	_, _ = store.Append(ctx, newEvent("alice", "0"))  // 00:00:02, no fee
	_, _ = store.Append(ctx, newEvent("bob", "2.5"))  // 00:00:03
	_, _ = store.Append(ctx, newEvent("bob", "100"))  // 00:00:04

	all, err := store.SumFees(ctx, types.TimeWindow{})
	require.NoError(t, err)
	assert.True(t, all.TotalFeesUSD.Equal(decimal.RequireFromString("112.5")))
	assert.Equal(t, int64(3), all.FeeEvents)

	from := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC)
	windowed, err := store.SumFees(ctx, types.TimeWindow{From: &from, To: &to})
	require.NoError(t, err)
	assert.True(t, windowed.TotalFeesUSD.Equal(decimal.RequireFromString("12.5")), "bounds are inclusive")
	assert.Equal(t, int64(2), windowed.FeeEvents)
}

func TestMemoryEventStore_ListFeeEvents(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryEventStoreWithClock(clock.Now)
	ctx := testContext(t)

	_, _ = store.Append(ctx, newEvent("alice", "1"))
	_, _ = store.Append(ctx, newEvent("alice", "0"))
	_, _ = store.Append(ctx, newEvent("bob", "3"))

	events, err := store.ListFeeEvents(ctx, types.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "alice", events[0].Subject)
	assert.Equal(t, "bob", events[1].Subject)

	to := time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC)
	events, err = store.ListFeeEvents(ctx, types.TimeWindow{To: &to})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
