package models

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/types"
)

// AssetKey identifies a tracked asset: a contract plus a token id within it.
// An empty TokenID denotes a fungible asset.
type AssetKey struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId,omitempty"`
}

// String renders the key as contract:tokenId
func (k AssetKey) String() string {
	if k.TokenID == "" {
		return k.Contract
	}
	return k.Contract + ":" + k.TokenID
}

// LedgerEvent is an immutable record of one asset movement. ID and Timestamp
// are assigned by the event store at append time.
type LedgerEvent struct {
	ID           int64            `json:"id"`
	Kind         types.EventKind  `json:"kind"`
	Subject      string           `json:"subject"`
	Asset        AssetKey         `json:"asset"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Fee          decimal.Decimal  `json:"feeUsd"`
	UnitPriceUSD *decimal.Decimal `json:"unitPriceUsd,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// HasPrice reports whether the event can participate in cost-basis math
func (e *LedgerEvent) HasPrice() bool {
	return e.UnitPriceUSD != nil
}

// Clone returns a deep copy so stored events cannot be mutated through a caller's pointer
func (e *LedgerEvent) Clone() LedgerEvent {
	c := *e
	if e.UnitPriceUSD != nil {
		p := *e.UnitPriceUSD
		c.UnitPriceUSD = &p
	}
	return c
}

// EventInput is the unvalidated form of an event as received from a caller
type EventInput struct {
	Kind         string           `json:"kind"`
	Subject      string           `json:"subject"`
	Contract     string           `json:"contract"`
	TokenID      string           `json:"tokenId"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Fee          decimal.Decimal  `json:"feeUsd"`
	UnitPriceUSD *decimal.Decimal `json:"unitPriceUsd,omitempty"`
}

// NewLedgerEvent validates input and returns an event ready to append.
// Malformed events never reach the store.
func NewLedgerEvent(in EventInput) (*LedgerEvent, error) {
	kind, err := types.ParseEventKind(in.Kind)
	if err != nil {
		return nil, errors.NewValidationError("kind", err.Error())
	}

	subject := NormalizeSubject(in.Subject)
	if subject == "" {
		return nil, errors.NewMissingSubjectError()
	}

	contract := NormalizeSubject(in.Contract)
	if contract == "" {
		return nil, errors.NewMissingParameterError("contract")
	}

	tokenID := strings.TrimSpace(in.TokenID)
	if tokenID != "" {
		n, ok := new(big.Int).SetString(tokenID, 10)
		if !ok || n.Sign() < 0 {
			return nil, errors.NewValidationError("tokenId", "must be a non-negative integer")
		}
		tokenID = n.String()
	}

	if err := CheckAmount("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if err := CheckAmount("feeUsd", in.Fee); err != nil {
		return nil, err
	}
	if in.UnitPriceUSD != nil {
		if err := CheckAmount("unitPriceUsd", *in.UnitPriceUSD); err != nil {
			return nil, err
		}
	}

	if !in.Quantity.IsPositive() {
		return nil, errors.NewValidationError("quantity", "must be positive")
	}
	if in.Fee.IsNegative() {
		return nil, errors.NewValidationError("feeUsd", "must not be negative")
	}

	var price *decimal.Decimal
	if in.UnitPriceUSD != nil {
		if in.UnitPriceUSD.IsNegative() {
			return nil, errors.NewValidationError("unitPriceUsd", "must not be negative")
		}
		p := *in.UnitPriceUSD
		price = &p
	}

	return &LedgerEvent{
		Kind:         kind,
		Subject:      subject,
		Asset:        AssetKey{Contract: contract, TokenID: tokenID},
		Quantity:     in.Quantity,
		Fee:          in.Fee,
		UnitPriceUSD: price,
	}, nil
}

// NormalizeSubject trims whitespace and lower-cases hex addresses so the same
// wallet always maps to the same subject. Other identifiers pass through as-is.
func NormalizeSubject(s string) string {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return strings.ToLower(common.HexToAddress(s).Hex())
	}
	return s
}

// Amounts are bounded like a NUMERIC(38,18) column: at most MaxAmountIntDigits
// digits before the point and MaxAmountScale after it.
const (
	MaxAmountIntDigits = 20
	MaxAmountScale     = 18
)

// CheckAmount rejects values outside the amount bounds. The exponent is checked
// before any arithmetic so oversized inputs cost nothing to refuse.
func CheckAmount(field string, d decimal.Decimal) error {
	exp := int(d.Exponent())
	if exp > MaxAmountIntDigits || exp < -(MaxAmountIntDigits+MaxAmountScale) {
		return errors.NewValidationError(field, "out of range")
	}
	if d.NumDigits()+exp > MaxAmountIntDigits {
		return errors.NewValidationError(field, fmt.Sprintf("at most %d integer digits", MaxAmountIntDigits))
	}
	if exp < -MaxAmountScale && !d.Truncate(MaxAmountScale).Equal(d) {
		return errors.NewValidationError(field, fmt.Sprintf("at most %d decimal places", MaxAmountScale))
	}
	return nil
}

// AmountFromFloat converts a float input into a decimal, rejecting NaN and infinities
func AmountFromFloat(field string, f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, errors.NewValidationError(field, fmt.Sprintf("must be finite, got %v", f))
	}
	return decimal.NewFromFloat(f), nil
}

// ParseAmount parses a decimal string input for field
func ParseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.NewValidationError(field, "not a decimal number")
	}
	return d, nil
}
