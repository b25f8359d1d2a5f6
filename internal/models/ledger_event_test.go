package models

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func validInput() EventInput {
	return EventInput{
		Kind:         "acquisition",
		Subject:      "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		Contract:     "0x00000000000000000000000000000000000000AA",
		TokenID:      "7",
		Quantity:     dec("10"),
		Fee:          dec("0"),
		UnitPriceUSD: decPtr("5"),
	}
}

func TestNewLedgerEvent_Valid(t *testing.T) {
	ev, err := NewLedgerEvent(validInput())
	require.NoError(t, err)

	assert.Equal(t, types.KindAcquisition, ev.Kind)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", ev.Subject)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa:7", ev.Asset.String())
	require.NotNil(t, ev.UnitPriceUSD)
	assert.True(t, ev.UnitPriceUSD.Equal(dec("5")))
	assert.Zero(t, ev.ID, "ids are assigned by the store")
}

func TestNewLedgerEvent_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(in *EventInput)
		wantCode string
	}{
		{"unknown kind", func(in *EventInput) { in.Kind = "transfer" }, errors.CodeValidation},
		{"empty subject", func(in *EventInput) { in.Subject = "  " }, errors.CodeMissingSubject},
		{"empty contract", func(in *EventInput) { in.Contract = "" }, errors.CodeMissingParameter},
		{"zero quantity", func(in *EventInput) { in.Quantity = decimal.Zero }, errors.CodeValidation},
		{"negative quantity", func(in *EventInput) { in.Quantity = dec("-1") }, errors.CodeValidation},
		{"negative fee", func(in *EventInput) { in.Fee = dec("-0.01") }, errors.CodeValidation},
		{"negative price", func(in *EventInput) { in.UnitPriceUSD = decPtr("-3") }, errors.CodeValidation},
		{"huge exponent quantity", func(in *EventInput) { in.Quantity = dec("1e50000000") }, errors.CodeValidation},
		{"tiny exponent fee", func(in *EventInput) { in.Fee = dec("1e-50000000") }, errors.CodeValidation},
		{"too many integer digits", func(in *EventInput) { in.Quantity = dec("123456789012345678901") }, errors.CodeValidation},
		{"too many decimal places", func(in *EventInput) { in.UnitPriceUSD = decPtr("0.0000000000000000001") }, errors.CodeValidation},
		{"non-numeric token id", func(in *EventInput) { in.TokenID = "abc" }, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := NewLedgerEvent(in)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestCheckAmount_Bounds(t *testing.T) {
	accepted := []string{"0", "1", "99999999999999999999", "0.000000000000000001", "1.500000000000000000000", "12345678901234567890.123456789012345678"}
	for _, s := range accepted {
		assert.NoError(t, CheckAmount("quantity", dec(s)), s)
	}

	rejected := []string{"1e21", "100000000000000000000", "0.0000000000000000001", "1e-39", "1e50000000"}
	for _, s := range rejected {
		err := CheckAmount("quantity", dec(s))
		assert.True(t, errors.IsCode(err, errors.CodeValidation), "%s: got %v", s, err)
	}
}

func TestNewLedgerEvent_PriceIsOptional(t *testing.T) {
	in := validInput()
	in.Kind = "reward"
	in.UnitPriceUSD = nil

	ev, err := NewLedgerEvent(in)
	require.NoError(t, err)
	assert.False(t, ev.HasPrice())
}

func TestNewLedgerEvent_CopiesPrice(t *testing.T) {
	in := validInput()
	ev, err := NewLedgerEvent(in)
	require.NoError(t, err)

	*in.UnitPriceUSD = dec("999")
	assert.True(t, ev.UnitPriceUSD.Equal(dec("5")))
}

func TestNormalizeSubject(t *testing.T) {
	assert.Equal(t, "alice", NormalizeSubject(" alice "))
	assert.Equal(t, "0x00000000000000000000000000000000000000aa",
		NormalizeSubject("0x00000000000000000000000000000000000000AA"))
}

func TestAmountFromFloat(t *testing.T) {
	_, err := AmountFromFloat("quantity", math.NaN())
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = AmountFromFloat("fee", math.Inf(1))
	assert.Error(t, err)

	d, err := AmountFromFloat("price", 2.5)
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("2.5")))
}

func TestClone(t *testing.T) {
	ev, err := NewLedgerEvent(validInput())
	require.NoError(t, err)

	c := ev.Clone()
	*c.UnitPriceUSD = dec("1")
	assert.True(t, ev.UnitPriceUSD.Equal(dec("5")))
}
