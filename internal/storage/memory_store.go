package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// MemoryEventStore implements EventStore in process memory. Used for tests,
// the CLI's dry runs and single-node development.
type MemoryEventStore struct {
	mu     sync.RWMutex
	nextID int64
	events []models.LedgerEvent
	now    func() time.Time
}

// NewMemoryEventStore creates an empty store using the wall clock
func NewMemoryEventStore() *MemoryEventStore {
	return NewMemoryEventStoreWithClock(time.Now)
}

// NewMemoryEventStoreWithClock creates an empty store stamping events with now
func NewMemoryEventStoreWithClock(now func() time.Time) *MemoryEventStore {
	return &MemoryEventStore{now: now}
}

func (s *MemoryEventStore) Append(ctx context.Context, ev *models.LedgerEvent) (*models.LedgerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := ev.Clone()
	stored.ID = s.nextID
	stored.Timestamp = s.now().UTC()

	// A clock that steps backwards must not let a later append sort earlier.
	if n := len(s.events); n > 0 && stored.Timestamp.Before(s.events[n-1].Timestamp) {
		stored.Timestamp = s.events[n-1].Timestamp
	}

	s.events = append(s.events, stored)

	out := stored.Clone()
	return &out, nil
}

func (s *MemoryEventStore) ListBySubject(ctx context.Context, subject string) ([]models.LedgerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.LedgerEvent, 0)
	for i := range s.events {
		if s.events[i].Subject == subject {
			out = append(out, s.events[i].Clone())
		}
	}

	slices.SortStableFunc(out, func(a, b models.LedgerEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryEventStore) Fingerprint(ctx context.Context, subject string) (Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return Fingerprint{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var fp Fingerprint
	for i := range s.events {
		if s.events[i].Subject == subject {
			fp.Count++
			fp.MaxID = max(fp.MaxID, s.events[i].ID)
		}
	}
	return fp, nil
}

func (s *MemoryEventStore) SumFees(ctx context.Context, window types.TimeWindow) (*FeeTotals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &FeeTotals{TotalFeesUSD: decimal.Zero}
	for i := range s.events {
		ev := &s.events[i]
		if !ev.Fee.IsPositive() || !window.Contains(ev.Timestamp) {
			continue
		}
		totals.TotalFeesUSD = totals.TotalFeesUSD.Add(ev.Fee)
		totals.FeeEvents++
	}
	return totals, nil
}

// ListFeeEvents returns events with a positive fee inside window, in store order
func (s *MemoryEventStore) ListFeeEvents(ctx context.Context, window types.TimeWindow) ([]models.LedgerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.LedgerEvent, 0)
	for i := range s.events {
		ev := &s.events[i]
		if ev.Fee.IsPositive() && window.Contains(ev.Timestamp) {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

// Len returns the number of stored events
func (s *MemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
