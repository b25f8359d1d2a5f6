package accounting

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

type eventSpec struct {
	Disposal bool
	TokenID  int
	Qty      int64
	PriceCts int64
}

func genEventSpec() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.IntRange(0, 3),
		gen.Int64Range(1, 50),
		gen.Int64Range(0, 100000),
	).Map(func(v []interface{}) eventSpec {
		return eventSpec{
			Disposal: v[0].(bool),
			TokenID:  v[1].(int),
			Qty:      v[2].(int64),
			PriceCts: v[3].(int64),
		}
	})
}

func toEvents(specs []eventSpec) []models.LedgerEvent {
	events := make([]models.LedgerEvent, len(specs))
	for i, s := range specs {
		kind := types.KindAcquisition
		if s.Disposal {
			kind = types.KindDisposal
		}
		price := decimal.New(s.PriceCts, -2)
		events[i] = models.LedgerEvent{
			ID:           int64(i + 1),
			Kind:         kind,
			Subject:      "prop",
			Asset:        models.AssetKey{Contract: "0xc", TokenID: string(rune('0' + s.TokenID))},
			Quantity:     decimal.NewFromInt(s.Qty),
			Fee:          decimal.Zero,
			UnitPriceUSD: &price,
			Timestamp:    time.Unix(int64(i/2), 0).UTC(),
		}
	}
	return events
}

func TestReplayProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("replaying twice yields identical summaries", prop.ForAll(
		func(specs []eventSpec) bool {
			events := toEvents(specs)
			a := Replay(events, haircut).Summary
			b := Replay(events, haircut).Summary
			return a.TotalGainsUSD.Equal(b.TotalGainsUSD) &&
				a.TotalLossesUSD.Equal(b.TotalLossesUSD) &&
				a.NetTaxableGainUSD.Equal(b.NetTaxableGainUSD)
		},
		gen.SliceOf(genEventSpec()),
	))

	properties.Property("gains are non-negative and losses non-positive", prop.ForAll(
		func(specs []eventSpec) bool {
			s := Replay(toEvents(specs), haircut).Summary
			return !s.TotalGainsUSD.IsNegative() && !s.TotalLossesUSD.IsPositive()
		},
		gen.SliceOf(genEventSpec()),
	))

	properties.Property("net equals gains plus haircut losses", prop.ForAll(
		func(specs []eventSpec) bool {
			s := Replay(toEvents(specs), haircut).Summary
			return s.NetTaxableGainUSD.Equal(s.TotalGainsUSD.Add(s.TotalLossesUSD.Mul(haircut)))
		},
		gen.SliceOf(genEventSpec()),
	))

	properties.Property("a disposal with no basis realizes its full proceeds", prop.ForAll(
		func(qty, priceCts int64) bool {
			events := toEvents([]eventSpec{{Disposal: true, Qty: qty, PriceCts: priceCts}})
			want := decimal.New(priceCts, -2).Mul(decimal.NewFromInt(qty))
			return Replay(events, haircut).Summary.TotalGainsUSD.Equal(want)
		},
		gen.Int64Range(1, 1000),
		gen.Int64Range(0, 1000000),
	))

	properties.TestingRun(t)
}

func TestRevenueSplitProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("shares reconstruct the total", prop.ForAll(
		func(cents int64) bool {
			total := decimal.New(cents, -2)
			split := SplitRevenue(total)

			reconstructed := split.DevShareUSD.
				Add(split.ProtocolNetUSD.Div(decimal.RequireFromString("0.95"))).
				Add(split.StakerShareUSD)
			diff := reconstructed.Sub(total).Abs()

			return split.Verify() == nil && diff.LessThan(decimal.New(1, -6))
		},
		gen.Int64Range(0, 1_000_000_000_00),
	))

	properties.TestingRun(t)
}
