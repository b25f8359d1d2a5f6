package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

func TestWriteCSV_TwoEvents(t *testing.T) {
	price := decimal.RequireFromString("5")
	events := []models.LedgerEvent{
		{
			ID:           1,
			Kind:         types.KindAcquisition,
			Subject:      "alice",
			Asset:        models.AssetKey{Contract: "0xnft", TokenID: "1"},
			Quantity:     decimal.NewFromInt(10),
			Fee:          decimal.Zero,
			UnitPriceUSD: &price,
			Timestamp:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:        2,
			Kind:      types.KindReward,
			Subject:   "alice",
			Asset:     models.AssetKey{Contract: "0xnft", TokenID: "1"},
			Quantity:  decimal.NewFromInt(1),
			Fee:       decimal.RequireFromString("0.25"),
			Timestamp: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, events))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,kind,asset,quantity,unit_price_usd,fee_usd", lines[0])
	assert.Equal(t, "2024-01-01T12:00:00Z,acquisition,0xnft:1,10,5,0", lines[1])
	assert.Equal(t, "2024-01-02T12:00:00Z,reward,0xnft:1,1,,0.25", lines[2])
}

func TestWriteCSV_EmptyHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	assert.Equal(t, "timestamp,kind,asset,quantity,unit_price_usd,fee_usd\n", buf.String())
}

func TestWriteCSV_QuotesSeparator(t *testing.T) {
	events := []models.LedgerEvent{{
		ID:        1,
		Kind:      types.KindMint,
		Asset:     models.AssetKey{Contract: "collection,with,commas"},
		Quantity:  decimal.NewFromInt(1),
		Fee:       decimal.Zero,
		Timestamp: time.Unix(0, 0),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, events))
	assert.Contains(t, buf.String(), `"collection,with,commas"`)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "collection,with,commas", records[1][2])
}
