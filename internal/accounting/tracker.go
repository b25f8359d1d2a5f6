// Package accounting implements average-cost basis tracking, realized gain/loss
// aggregation and the protocol fee split.
package accounting

import (
	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// LotKey identifies the cost-basis lot of one asset held by one subject
type LotKey struct {
	Subject string
	Asset   models.AssetKey
}

// Lot is the running position for a LotKey. QuantityHeld may go negative when
// disposals exceed recorded acquisitions; that state is reported, never clamped.
type Lot struct {
	QuantityHeld decimal.Decimal `json:"quantityHeld"`
	TotalCostUSD decimal.Decimal `json:"totalCostUsd"`
}

// AverageCost is TotalCostUSD / QuantityHeld, or zero when nothing is held
func (l *Lot) AverageCost() decimal.Decimal {
	if l == nil || !l.QuantityHeld.IsPositive() {
		return decimal.Zero
	}
	return l.TotalCostUSD.Div(l.QuantityHeld)
}

// Lots holds every lot touched during a replay
type Lots map[LotKey]*Lot

// KeyOf returns the lot key an event belongs to
func KeyOf(ev *models.LedgerEvent) LotKey {
	return LotKey{Subject: ev.Subject, Asset: ev.Asset}
}

// Apply folds a priced acquisition into its lot. Every other event leaves the
// lots untouched and Apply reports false.
func (l Lots) Apply(ev *models.LedgerEvent) bool {
	if ev.Kind != types.KindAcquisition || !ev.HasPrice() {
		return false
	}

	lot := l.lot(KeyOf(ev))
	lot.TotalCostUSD = lot.TotalCostUSD.Add(ev.UnitPriceUSD.Mul(ev.Quantity))
	lot.QuantityHeld = lot.QuantityHeld.Add(ev.Quantity)
	return true
}

// AverageCost returns the average unit cost for key; a missing lot costs zero
func (l Lots) AverageCost(key LotKey) decimal.Decimal {
	return l[key].AverageCost()
}

// Get returns a copy of the lot for key and whether it exists
func (l Lots) Get(key LotKey) (Lot, bool) {
	lot, ok := l[key]
	if !ok {
		return Lot{}, false
	}
	return *lot, true
}

// reduce removes quantity units at costPerUnit. Cost is driven to zero once
// the position is fully closed.
func (l Lots) reduce(key LotKey, quantity, costPerUnit decimal.Decimal) *Lot {
	lot := l.lot(key)
	lot.TotalCostUSD = lot.TotalCostUSD.Sub(costPerUnit.Mul(quantity))
	lot.QuantityHeld = lot.QuantityHeld.Sub(quantity)
	if lot.QuantityHeld.IsZero() {
		lot.TotalCostUSD = decimal.Zero
	}
	return lot
}

func (l Lots) lot(key LotKey) *Lot {
	lot, ok := l[key]
	if !ok {
		lot = &Lot{}
		l[key] = lot
	}
	return lot
}
