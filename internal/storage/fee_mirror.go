package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// ClickHouseFeeMirror keeps a columnar copy of fee-bearing events so fee
// windows can be aggregated without scanning the ledger table. The ledger in
// Postgres stays the source of truth; the mirror is filled after appends.
type ClickHouseFeeMirror struct {
	db *ClickHouseDB
}

// NewClickHouseFeeMirror creates a mirror over an open connection
func NewClickHouseFeeMirror(db *ClickHouseDB) *ClickHouseFeeMirror {
	return &ClickHouseFeeMirror{db: db}
}

// Record mirrors events that carry a fee; the rest are ignored
func (m *ClickHouseFeeMirror) Record(ctx context.Context, events ...*models.LedgerEvent) error {
	batch, err := m.db.Conn().PrepareBatch(ctx, `
		INSERT INTO fee_events (event_id, kind, subject, asset, fee_usd, recorded_at)
	`)
	if err != nil {
		return errors.NewStoreUnavailableError("mirror fees", err)
	}

	appended := 0
	for _, ev := range events {
		if ev == nil || !ev.Fee.IsPositive() {
			continue
		}
		if err := batch.Append(
			ev.ID,
			string(ev.Kind),
			ev.Subject,
			ev.Asset.String(),
			ev.Fee,
			ev.Timestamp,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append fee event %d: %w", ev.ID, err)
		}
		appended++
	}

	if appended == 0 {
		return batch.Abort()
	}
	if err := batch.Send(); err != nil {
		return errors.NewStoreUnavailableError("mirror fees", err)
	}
	return nil
}

// SumFees totals mirrored fees recorded within the inclusive window
func (m *ClickHouseFeeMirror) SumFees(ctx context.Context, window types.TimeWindow) (*FeeTotals, error) {
	query := `SELECT toString(sum(fee_usd)), count() FROM fee_events FINAL`
	var (
		conds []string
		args  []any
	)
	if window.From != nil {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, *window.From)
	}
	if window.To != nil {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, *window.To)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var (
		total string
		count uint64
	)
	if err := m.db.Conn().QueryRow(ctx, query, args...).Scan(&total, &count); err != nil {
		return nil, errors.NewStoreUnavailableError("sum mirrored fees", err)
	}

	sum, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse mirrored fee total %q: %w", total, err)
	}

	return &FeeTotals{TotalFeesUSD: sum, FeeEvents: int64(count)}, nil // #nosec G115 - row count
}
