package accounting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fee split ratios. Dev, protocol and stakers together account for the whole
// fee total; the reserve cut is taken out of the protocol share.
var (
	DevShareRatio      = decimal.RequireFromString("0.6")
	ProtocolShareRatio = decimal.RequireFromString("0.3")
	ReserveCutRatio    = decimal.RequireFromString("0.05")
	StakerShareRatio   = decimal.RequireFromString("0.1")
)

// RevenueSplit divides collected fees between stakeholders
type RevenueSplit struct {
	TotalFeesUSD     decimal.Decimal
	DevShareUSD      decimal.Decimal
	ProtocolGrossUSD decimal.Decimal
	ProtocolNetUSD   decimal.Decimal
	ReserveShareUSD  decimal.Decimal
	StakerShareUSD   decimal.Decimal
}

// SplitRevenue applies the fixed ratios to total
func SplitRevenue(total decimal.Decimal) RevenueSplit {
	gross := total.Mul(ProtocolShareRatio)
	reserve := gross.Mul(ReserveCutRatio)

	return RevenueSplit{
		TotalFeesUSD:     total,
		DevShareUSD:      total.Mul(DevShareRatio),
		ProtocolGrossUSD: gross,
		ProtocolNetUSD:   gross.Sub(reserve),
		ReserveShareUSD:  reserve,
		StakerShareUSD:   total.Mul(StakerShareRatio),
	}
}

// Verify checks that the shares add back up to the totals they came from
func (r RevenueSplit) Verify() error {
	if sum := r.DevShareUSD.Add(r.ProtocolGrossUSD).Add(r.StakerShareUSD); !sum.Equal(r.TotalFeesUSD) {
		return fmt.Errorf("revenue shares sum to %s, want %s", sum, r.TotalFeesUSD)
	}
	if sum := r.ProtocolNetUSD.Add(r.ReserveShareUSD); !sum.Equal(r.ProtocolGrossUSD) {
		return fmt.Errorf("protocol net + reserve is %s, want %s", sum, r.ProtocolGrossUSD)
	}
	return nil
}

// RoundedRevenueSplit is the presentation form of a RevenueSplit
type RoundedRevenueSplit struct {
	TotalFeesUSD     float64 `json:"totalFeesUSD"`
	DevShareUSD      float64 `json:"devShareUSD"`
	ProtocolGrossUSD float64 `json:"protocolGrossUSD"`
	ProtocolNetUSD   float64 `json:"protocolNetUSD"`
	ReserveShareUSD  float64 `json:"reserveShareUSD"`
	StakerShareUSD   float64 `json:"stakerShareUSD"`
}

// Rounded rounds every share to PresentationPlaces
func (r RevenueSplit) Rounded() RoundedRevenueSplit {
	return RoundedRevenueSplit{
		TotalFeesUSD:     RoundUSD(r.TotalFeesUSD),
		DevShareUSD:      RoundUSD(r.DevShareUSD),
		ProtocolGrossUSD: RoundUSD(r.ProtocolGrossUSD),
		ProtocolNetUSD:   RoundUSD(r.ProtocolNetUSD),
		ReserveShareUSD:  RoundUSD(r.ReserveShareUSD),
		StakerShareUSD:   RoundUSD(r.StakerShareUSD),
	}
}
