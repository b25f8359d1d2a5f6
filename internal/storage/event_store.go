package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// EventStore is the append-only ledger. Implementations must make Append
// atomic and must return events ordered by (timestamp, id) even while appends
// are in flight.
type EventStore interface {
	// Append assigns an id and timestamp and persists the event
	Append(ctx context.Context, ev *models.LedgerEvent) (*models.LedgerEvent, error)
	// ListBySubject returns every event for subject ascending by timestamp, then id
	ListBySubject(ctx context.Context, subject string) ([]models.LedgerEvent, error)
	// Fingerprint identifies the current event sequence of a subject
	Fingerprint(ctx context.Context, subject string) (Fingerprint, error)
	// SumFees totals fees of events recorded within the window
	SumFees(ctx context.Context, window types.TimeWindow) (*FeeTotals, error)
}

// FeeSource is anything that can total fees over a window
type FeeSource interface {
	SumFees(ctx context.Context, window types.TimeWindow) (*FeeTotals, error)
}

// FeeEventLister lists fee-bearing events, oldest first. Used to backfill
// the analytics mirror from the ledger.
type FeeEventLister interface {
	ListFeeEvents(ctx context.Context, window types.TimeWindow) ([]models.LedgerEvent, error)
}

// FeeTotals is the aggregate fee figure for a window
type FeeTotals struct {
	TotalFeesUSD decimal.Decimal
	// FeeEvents counts events with a non-zero fee
	FeeEvents int64
}

// Fingerprint names a prefix of a subject's append-only sequence. Since events
// are never removed, the count and highest id together pin down the exact set.
type Fingerprint struct {
	Count int64
	MaxID int64
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%d:%d", f.Count, f.MaxID)
}

// FingerprintOf computes the fingerprint of an already-loaded sequence
func FingerprintOf(events []models.LedgerEvent) Fingerprint {
	fp := Fingerprint{Count: int64(len(events))}
	for i := range events {
		if events[i].ID > fp.MaxID {
			fp.MaxID = events[i].ID
		}
	}
	return fp
}
