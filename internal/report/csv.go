// Package report renders ledger events as a portable CSV report.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/tax-ledger/internal/models"
)

// Filename is the attachment name used when the report is served over HTTP
const Filename = "tax-report.csv"

// ContentType is the MIME type of the report
const ContentType = "text/csv"

// Header is the first row of every report, including empty ones
var Header = []string{"timestamp", "kind", "asset", "quantity", "unit_price_usd", "fee_usd"}

// WriteCSV writes the header followed by one row per event, in the order given.
// Fields containing the separator, quotes or newlines are quoted.
func WriteCSV(w io.Writer, events []models.LedgerEvent) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range events {
		if err := cw.Write(Row(&events[i])); err != nil {
			return fmt.Errorf("write event %d: %w", events[i].ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Row renders a single event; an absent unit price is an empty field
func Row(ev *models.LedgerEvent) []string {
	price := ""
	if ev.UnitPriceUSD != nil {
		price = ev.UnitPriceUSD.String()
	}

	return []string{
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		string(ev.Kind),
		ev.Asset.String(),
		ev.Quantity.String(),
		price,
		ev.Fee.String(),
	}
}
