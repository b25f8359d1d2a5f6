package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// PostgresEventStore implements EventStore on the ledger_events table.
// Quantities and money are NUMERIC columns, written from and read back as
// decimal strings so no precision is lost on the way through.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a store over an open pool
func NewPostgresEventStore(db *PostgresDB) *PostgresEventStore {
	return &PostgresEventStore{pool: db.Pool()}
}

const selectEventColumns = `id, kind, subject, asset_contract, asset_token_id,
	quantity::TEXT, fee_usd::TEXT, unit_price_usd::TEXT, recorded_at`

// Append inserts the event in a single statement. The id comes from the table
// sequence and the timestamp from the database clock.
func (s *PostgresEventStore) Append(ctx context.Context, ev *models.LedgerEvent) (*models.LedgerEvent, error) {
	var price *string
	if ev.UnitPriceUSD != nil {
		p := ev.UnitPriceUSD.String()
		price = &p
	}

	stored := ev.Clone()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ledger_events (kind, subject, asset_contract, asset_token_id, quantity, fee_usd, unit_price_usd)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC)
		 RETURNING id, recorded_at`,
		string(ev.Kind), ev.Subject, ev.Asset.Contract, ev.Asset.TokenID,
		ev.Quantity.String(), ev.Fee.String(), price,
	).Scan(&stored.ID, &stored.Timestamp)
	if err != nil {
		return nil, wrapPgError("append event", err)
	}

	stored.Timestamp = stored.Timestamp.UTC()
	return &stored, nil
}

func (s *PostgresEventStore) ListBySubject(ctx context.Context, subject string) ([]models.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectEventColumns+`
		 FROM ledger_events
		 WHERE subject = $1
		 ORDER BY recorded_at, id`, subject)
	if err != nil {
		return nil, wrapPgError("list events", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, wrapPgError("list events", err)
	}
	return events, nil
}

func (s *PostgresEventStore) Fingerprint(ctx context.Context, subject string) (Fingerprint, error) {
	var fp Fingerprint
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MAX(id), 0) FROM ledger_events WHERE subject = $1`, subject,
	).Scan(&fp.Count, &fp.MaxID)
	if err != nil {
		return Fingerprint{}, wrapPgError("fingerprint events", err)
	}
	return fp, nil
}

func (s *PostgresEventStore) SumFees(ctx context.Context, window types.TimeWindow) (*FeeTotals, error) {
	var total string
	totals := &FeeTotals{}

	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(fee_usd), 0)::TEXT, COUNT(*)
		 FROM ledger_events
		 WHERE fee_usd > 0
		   AND ($1::TIMESTAMPTZ IS NULL OR recorded_at >= $1)
		   AND ($2::TIMESTAMPTZ IS NULL OR recorded_at <= $2)`,
		window.From, window.To,
	).Scan(&total, &totals.FeeEvents)
	if err != nil {
		return nil, wrapPgError("sum fees", err)
	}

	totals.TotalFeesUSD, err = decimal.NewFromString(total)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("parse fee total %q", total), err)
	}
	return totals, nil
}

func (s *PostgresEventStore) ListFeeEvents(ctx context.Context, window types.TimeWindow) ([]models.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectEventColumns+`
		 FROM ledger_events
		 WHERE fee_usd > 0
		   AND ($1::TIMESTAMPTZ IS NULL OR recorded_at >= $1)
		   AND ($2::TIMESTAMPTZ IS NULL OR recorded_at <= $2)
		 ORDER BY recorded_at, id`,
		window.From, window.To)
	if err != nil {
		return nil, wrapPgError("list fee events", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, wrapPgError("list fee events", err)
	}
	return events, nil
}

func scanEvents(rows pgx.Rows) ([]models.LedgerEvent, error) {
	events := make([]models.LedgerEvent, 0)

	for rows.Next() {
		var (
			ev       models.LedgerEvent
			kind     string
			qty, fee string
			price    *string
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.Subject, &ev.Asset.Contract, &ev.Asset.TokenID,
			&qty, &fee, &price, &ev.Timestamp); err != nil {
			return nil, err
		}

		var err error
		ev.Kind = types.EventKind(kind)
		if ev.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, decodeError(ev.ID, "quantity", err)
		}
		if ev.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, decodeError(ev.ID, "fee", err)
		}
		if price != nil {
			p, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, decodeError(ev.ID, "unit price", err)
			}
			ev.UnitPriceUSD = &p
		}
		ev.Timestamp = ev.Timestamp.UTC()

		events = append(events, ev)
	}

	return events, rows.Err()
}

// decodeError reports a stored value that does not parse. Retrying cannot fix
// it, so it is internal rather than StoreUnavailable.
func decodeError(id int64, column string, err error) error {
	return errors.NewInternalError(fmt.Sprintf("decode event %d %s", id, column), err)
}
