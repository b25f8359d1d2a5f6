package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/storage"
	"github.com/tax-ledger/internal/types"
)

// backfillBatchSize bounds each insert into the mirror
const backfillBatchSize = 500

// FeeLedger is the authoritative side of a consistency check
type FeeLedger interface {
	storage.FeeSource
	storage.FeeEventLister
}

// FeeMirror is the analytics side of a consistency check
type FeeMirror interface {
	storage.FeeSource
	FeeRecorder
}

// ConsistencyChecker compares fee totals in the ledger with the analytics
// mirror. The ledger is authoritative; a mismatch means mirror writes were
// lost and the window needs a backfill.
type ConsistencyChecker struct {
	ledger FeeLedger
	mirror FeeMirror
	logger *logging.Logger
}

// NewConsistencyChecker creates a checker over ledger and mirror
func NewConsistencyChecker(ledger FeeLedger, mirror FeeMirror, logger *logging.Logger) *ConsistencyChecker {
	return &ConsistencyChecker{
		ledger: ledger,
		mirror: mirror,
		logger: logger.WithComponent("consistency_checker"),
	}
}

// ConsistencyCheckResult represents the result of a consistency check
type ConsistencyCheckResult struct {
	Consistent      bool       `json:"consistent"`
	LedgerFeesUSD   string     `json:"ledgerFeesUSD"`
	MirrorFeesUSD   string     `json:"mirrorFeesUSD"`
	LedgerEvents    int64      `json:"ledgerEvents"`
	MirrorEvents    int64      `json:"mirrorEvents"`
	Inconsistencies []string   `json:"inconsistencies,omitempty"`
	From            *time.Time `json:"from"`
	To              *time.Time `json:"to"`
	CheckedAt       time.Time  `json:"checkedAt"`
}

// BackfillResult reports a mirror backfill
type BackfillResult struct {
	EventsCopied int           `json:"eventsCopied"`
	Batches      int           `json:"batches"`
	Duration     time.Duration `json:"duration"`
}

// CheckFees compares both sources over window
func (cc *ConsistencyChecker) CheckFees(ctx context.Context, window types.TimeWindow) (*ConsistencyCheckResult, error) {
	ledger, err := cc.ledger.SumFees(ctx, window)
	if err != nil {
		return nil, err
	}
	mirror, err := cc.mirror.SumFees(ctx, window)
	if err != nil {
		return nil, err
	}

	result := &ConsistencyCheckResult{
		LedgerFeesUSD: ledger.TotalFeesUSD.String(),
		MirrorFeesUSD: mirror.TotalFeesUSD.String(),
		LedgerEvents:  ledger.FeeEvents,
		MirrorEvents:  mirror.FeeEvents,
		From:          window.From,
		To:            window.To,
		CheckedAt:     time.Now().UTC(),
	}

	if ledger.FeeEvents != mirror.FeeEvents {
		result.Inconsistencies = append(result.Inconsistencies,
			fmt.Sprintf("event count mismatch: ledger=%d, mirror=%d", ledger.FeeEvents, mirror.FeeEvents))
	}
	if !ledger.TotalFeesUSD.Equal(mirror.TotalFeesUSD) {
		result.Inconsistencies = append(result.Inconsistencies,
			fmt.Sprintf("fee total mismatch: ledger=%s, mirror=%s", ledger.TotalFeesUSD, mirror.TotalFeesUSD))
	}
	result.Consistent = len(result.Inconsistencies) == 0

	if !result.Consistent {
		cc.logger.WithField("inconsistencies", result.Inconsistencies).Warn("fee mirror out of sync with ledger")
	}

	return result, nil
}

// Backfill copies every fee-bearing ledger event in window into the mirror.
// The mirror deduplicates on event id, so re-copying a window is safe.
func (cc *ConsistencyChecker) Backfill(ctx context.Context, window types.TimeWindow) (*BackfillResult, error) {
	start := time.Now()

	events, err := cc.ledger.ListFeeEvents(ctx, window)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{}
	for offset := 0; offset < len(events); offset += backfillBatchSize {
		end := min(offset+backfillBatchSize, len(events))

		batch := make([]*models.LedgerEvent, 0, end-offset)
		for i := offset; i < end; i++ {
			batch = append(batch, &events[i])
		}
		if err := cc.mirror.Record(ctx, batch...); err != nil {
			return nil, fmt.Errorf("backfill batch at offset %d: %w", offset, err)
		}

		result.Batches++
		result.EventsCopied += len(batch)
	}
	result.Duration = time.Since(start)

	cc.logger.WithFields(map[string]interface{}{
		"events":  result.EventsCopied,
		"batches": result.Batches,
	}).Info("fee mirror backfill completed")

	return result, nil
}
