package accounting

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// PresentationPlaces is the number of decimal places summaries are rounded to
// when leaving the engine. Accumulation is always done at full precision.
const PresentationPlaces = 2

// Summary is the realized gain/loss aggregate for one subject
type Summary struct {
	TotalGainsUSD     decimal.Decimal
	TotalLossesUSD    decimal.Decimal // <= 0
	AdjustedLossesUSD decimal.Decimal
	NetTaxableGainUSD decimal.Decimal
}

// RoundedSummary is the presentation form of a Summary
type RoundedSummary struct {
	TotalGainsUSD     float64 `json:"totalGainsUSD"`
	TotalLossesUSD    float64 `json:"totalLossesUSD"`
	AdjustedLossesUSD float64 `json:"adjustedLossesUSD"`
	NetTaxableGainUSD float64 `json:"netTaxableGainUSD"`
}

// Rounded rounds every field half away from zero to PresentationPlaces
func (s Summary) Rounded() RoundedSummary {
	return RoundedSummary{
		TotalGainsUSD:     RoundUSD(s.TotalGainsUSD),
		TotalLossesUSD:    RoundUSD(s.TotalLossesUSD),
		AdjustedLossesUSD: RoundUSD(s.AdjustedLossesUSD),
		NetTaxableGainUSD: RoundUSD(s.NetTaxableGainUSD),
	}
}

// RoundUSD rounds d half away from zero to PresentationPlaces for output
func RoundUSD(d decimal.Decimal) float64 {
	f := d.Round(PresentationPlaces).InexactFloat64()
	if f == 0 {
		// avoid -0 in JSON output
		return 0
	}
	return f
}

// Violation records a disposal that left a lot with negative holdings
type Violation struct {
	EventID      int64           `json:"eventId"`
	Subject      string          `json:"subject"`
	Asset        string          `json:"asset"`
	QuantityHeld decimal.Decimal `json:"quantityHeld"`
	Timestamp    time.Time       `json:"timestamp"`
}

// AssetResult is the per-asset breakdown of a replay
type AssetResult struct {
	Subject          string          `json:"subject"`
	Asset            string          `json:"asset"`
	RealizedGainsUSD decimal.Decimal `json:"realizedGainsUsd"`
	RealizedLossUSD  decimal.Decimal `json:"realizedLossesUsd"`
	QuantityHeld     decimal.Decimal `json:"quantityHeld"`
	AverageCostUSD   decimal.Decimal `json:"averageCostUsd"`
}

type realized struct {
	gains  decimal.Decimal
	losses decimal.Decimal
}

// Result is everything a single replay produces
type Result struct {
	Summary       Summary
	Lots          Lots
	Violations    []Violation
	EventsApplied int
	EventsSkipped int

	perLot map[LotKey]*realized
}

// Assets returns the per-asset breakdown ordered by subject then asset
func (r *Result) Assets() []AssetResult {
	out := make([]AssetResult, 0, len(r.Lots))
	for key, lot := range r.Lots {
		res := AssetResult{
			Subject:          key.Subject,
			Asset:            key.Asset.String(),
			RealizedGainsUSD: decimal.Zero,
			RealizedLossUSD:  decimal.Zero,
			QuantityHeld:     lot.QuantityHeld,
			AverageCostUSD:   lot.AverageCost(),
		}
		if rz, ok := r.perLot[key]; ok {
			res.RealizedGainsUSD = rz.gains
			res.RealizedLossUSD = rz.losses
		}
		out = append(out, res)
	}
	slices.SortFunc(out, func(a, b AssetResult) int {
		if c := cmp.Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		return cmp.Compare(a.Asset, b.Asset)
	})
	return out
}

// HasViolations reports whether any lot went negative during the replay
func (r *Result) HasViolations() bool {
	return len(r.Violations) > 0
}

// Replay folds events, in (timestamp, id) order, into lots and a gain/loss
// summary. Events are expected in store order; an unordered slice is sorted on
// a copy first. The input is never modified.
//
// Priced acquisitions build cost basis. Priced disposals realize
// (unitPrice - avgCost) * quantity against the lot; a missing lot has zero
// basis, so the full proceeds count as gain. Every other event is skipped.
func Replay(events []models.LedgerEvent, haircut decimal.Decimal) *Result {
	if !slices.IsSortedFunc(events, compareEvents) {
		events = slices.Clone(events)
		slices.SortStableFunc(events, compareEvents)
	}

	res := &Result{
		Summary: Summary{
			TotalGainsUSD:  decimal.Zero,
			TotalLossesUSD: decimal.Zero,
		},
		Lots:   Lots{},
		perLot: map[LotKey]*realized{},
	}

	for i := range events {
		ev := &events[i]

		switch {
		case ev.Kind == types.KindAcquisition && ev.HasPrice():
			res.Lots.Apply(ev)
			res.EventsApplied++

		case ev.Kind == types.KindDisposal && ev.HasPrice():
			res.dispose(ev)
			res.EventsApplied++

		default:
			res.EventsSkipped++
		}
	}

	res.Summary.AdjustedLossesUSD = res.Summary.TotalLossesUSD.Mul(haircut)
	res.Summary.NetTaxableGainUSD = res.Summary.TotalGainsUSD.Add(res.Summary.AdjustedLossesUSD)
	return res
}

func (r *Result) dispose(ev *models.LedgerEvent) {
	key := KeyOf(ev)
	avgCost := r.Lots.AverageCost(key)
	gain := ev.UnitPriceUSD.Sub(avgCost).Mul(ev.Quantity)

	rz, ok := r.perLot[key]
	if !ok {
		rz = &realized{gains: decimal.Zero, losses: decimal.Zero}
		r.perLot[key] = rz
	}

	if gain.IsNegative() {
		r.Summary.TotalLossesUSD = r.Summary.TotalLossesUSD.Add(gain)
		rz.losses = rz.losses.Add(gain)
	} else {
		r.Summary.TotalGainsUSD = r.Summary.TotalGainsUSD.Add(gain)
		rz.gains = rz.gains.Add(gain)
	}

	lot := r.Lots.reduce(key, ev.Quantity, avgCost)
	if lot.QuantityHeld.IsNegative() {
		r.Violations = append(r.Violations, Violation{
			EventID:      ev.ID,
			Subject:      ev.Subject,
			Asset:        ev.Asset.String(),
			QuantityHeld: lot.QuantityHeld,
			Timestamp:    ev.Timestamp,
		})
	}
}

func compareEvents(a, b models.LedgerEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
