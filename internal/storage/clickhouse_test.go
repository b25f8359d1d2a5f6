package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/config"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

func openTestMirror(t *testing.T) *ClickHouseFeeMirror {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(testContext(t), &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "tax_ledger",
		User:     "default",
		Password: "clickhouse_dev_password",
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunClickHouseMigrations(testContext(t), db, "../../migrations/clickhouse", quietLogger()); err != nil {
		t.Skipf("Skipping test - migrations failed: %v", err)
	}

	return NewClickHouseFeeMirror(db)
}

func TestClickHouseFeeMirror_RecordAndSum(t *testing.T) {
	mirror := openTestMirror(t)
	ctx := testContext(t)

	// far-future window isolates this run from earlier data
	base := time.Date(2199, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(time.Now().UnixNano() % int64(time.Hour)))
	events := []*models.LedgerEvent{
		{ID: base.UnixNano(), Kind: types.KindDisposal, Subject: "a", Fee: decimal.RequireFromString("5"), Timestamp: base},
		{ID: base.UnixNano() + 1, Kind: types.KindAcquisition, Subject: "b", Fee: decimal.Zero, Timestamp: base},
		{ID: base.UnixNano() + 2, Kind: types.KindDisposal, Subject: "c", Fee: decimal.RequireFromString("2.25"), Timestamp: base.Add(time.Second)},
	}
	require.NoError(t, mirror.Record(ctx, events...))

	to := base.Add(time.Second)
	totals, err := mirror.SumFees(ctx, types.TimeWindow{From: &base, To: &to})
	require.NoError(t, err)
	assert.True(t, totals.TotalFeesUSD.Equal(decimal.RequireFromString("7.25")), "got %s", totals.TotalFeesUSD)
	assert.Equal(t, int64(2), totals.FeeEvents)
}

func TestSplitSQLStatements(t *testing.T) {
	sql := `-- header comment
CREATE TABLE a (x Int8) ENGINE = Memory;

-- second
CREATE TABLE b (
    y Int8
) ENGINE = Memory;
SELECT 1`

	stmts := splitSQLStatements(sql)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x Int8) ENGINE = Memory", stmts[0])
	assert.Contains(t, stmts[1], "y Int8")
	assert.Equal(t, "SELECT 1", stmts[2])
}
