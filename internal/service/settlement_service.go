package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tax-ledger/internal/adapter"
	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/metrics"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/types"
)

// Marketplace trade fee: 5% of the trade total, capped at 100 USD
var (
	TradeFeeRate   = decimal.RequireFromString("0.05")
	TradeFeeCapUSD = decimal.NewFromInt(100)
)

// ListingRequest asks to list quantity units of an asset for sale
type ListingRequest struct {
	Seller       string          `json:"seller"`
	Contract     string          `json:"contract"`
	TokenID      string          `json:"tokenId"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPriceUSD decimal.Decimal `json:"unitPriceUsd"`
	// TxHash is set when the caller already broadcast the settlement transaction
	TxHash string `json:"txHash,omitempty"`
}

// TradeRequest asks to move quantity units from seller to buyer
type TradeRequest struct {
	Seller       string          `json:"seller"`
	Buyer        string          `json:"buyer"`
	Contract     string          `json:"contract"`
	TokenID      string          `json:"tokenId"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPriceUSD decimal.Decimal `json:"unitPriceUsd"`
	TxHash       string          `json:"txHash,omitempty"`
}

// SettlementReceipt is what a Settler reports back
type SettlementReceipt struct {
	TxHash string
}

// Settler performs the marketplace side of a listing or trade
type Settler interface {
	List(ctx context.Context, req ListingRequest) (*SettlementReceipt, error)
	Trade(ctx context.Context, req TradeRequest) (*SettlementReceipt, error)
}

// SettlementResult is returned once settlement succeeded. LedgerError is set
// when the settlement went through but recording it in the ledger failed.
type SettlementResult struct {
	SettlementID   string                `json:"settlementId"`
	TxHash         string                `json:"txHash,omitempty"`
	Confirmation   *adapter.Confirmation `json:"confirmation,omitempty"`
	FeeUSD         float64               `json:"feeUsd"`
	LedgerEventIDs []int64               `json:"ledgerEventIds"`
	LedgerError    string                `json:"ledgerError,omitempty"`
	SettledAt      time.Time             `json:"settledAt"`
}

// SettlementService runs marketplace settlements as ordered pipelines:
// settle, confirm on chain, append to the ledger, return.
type SettlementService struct {
	settler Settler
	chain   adapter.ChainReader
	tax     *TaxService
	logger  *logging.Logger
}

// NewSettlementService creates a settlement service. chain may be nil, in
// which case receipts are not confirmed and ownership is not prechecked.
func NewSettlementService(settler Settler, chain adapter.ChainReader, tax *TaxService, logger *logging.Logger) *SettlementService {
	return &SettlementService{
		settler: settler,
		chain:   chain,
		tax:     tax,
		logger:  logger.WithComponent("settlement_service"),
	}
}

// TradeFee returns min(5% of total, 100), kept within the ledger's amount scale
func TradeFee(total decimal.Decimal) decimal.Decimal {
	return decimal.Min(total.Mul(TradeFeeRate), TradeFeeCapUSD).Round(models.MaxAmountScale)
}

// ListItem settles a listing and records an acquisition for the seller
func (s *SettlementService) ListItem(ctx context.Context, req ListingRequest) (*SettlementResult, error) {
	price := req.UnitPriceUSD
	inputs := []models.EventInput{{
		Kind:         string(types.KindAcquisition),
		Subject:      req.Seller,
		Contract:     req.Contract,
		TokenID:      req.TokenID,
		Quantity:     req.Quantity,
		UnitPriceUSD: &price,
	}}
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, req.Contract, req.Seller, req.TokenID, req.Quantity); err != nil {
		return nil, err
	}

	receipt, err := s.settler.List(ctx, req)
	if err != nil {
		return nil, errors.NewSettlementError("list", err)
	}

	return s.finish(ctx, "listing", receipt, decimal.Zero, inputs)
}

// ExecuteTrade settles a trade, then records a disposal (carrying the fee) for
// the seller and an acquisition for the buyer, both at the unit price.
func (s *SettlementService) ExecuteTrade(ctx context.Context, req TradeRequest) (*SettlementResult, error) {
	if strings.TrimSpace(req.Buyer) == "" {
		return nil, errors.NewMissingParameterError("buyer")
	}
	if models.NormalizeSubject(req.Buyer) == models.NormalizeSubject(req.Seller) {
		return nil, errors.NewValidationError("buyer", "must differ from seller")
	}

	// bounds first; the fee multiplies both
	if err := models.CheckAmount("quantity", req.Quantity); err != nil {
		return nil, err
	}
	if err := models.CheckAmount("unitPriceUsd", req.UnitPriceUSD); err != nil {
		return nil, err
	}

	fee := TradeFee(req.Quantity.Mul(req.UnitPriceUSD))
	sellPrice, buyPrice := req.UnitPriceUSD, req.UnitPriceUSD
	inputs := []models.EventInput{
		{
			Kind:         string(types.KindDisposal),
			Subject:      req.Seller,
			Contract:     req.Contract,
			TokenID:      req.TokenID,
			Quantity:     req.Quantity,
			Fee:          fee,
			UnitPriceUSD: &sellPrice,
		},
		{
			Kind:         string(types.KindAcquisition),
			Subject:      req.Buyer,
			Contract:     req.Contract,
			TokenID:      req.TokenID,
			Quantity:     req.Quantity,
			UnitPriceUSD: &buyPrice,
		},
	}
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, req.Contract, req.Seller, req.TokenID, req.Quantity); err != nil {
		return nil, err
	}

	receipt, err := s.settler.Trade(ctx, req)
	if err != nil {
		return nil, errors.NewSettlementError("trade", err)
	}

	return s.finish(ctx, "trade", receipt, fee, inputs)
}

// finish confirms the receipt and appends the ledger events. Append failures
// are logged, counted and reported in the result; they never hide the
// settlement itself.
func (s *SettlementService) finish(ctx context.Context, source string, receipt *SettlementReceipt, fee decimal.Decimal, inputs []models.EventInput) (*SettlementResult, error) {
	result := &SettlementResult{
		SettlementID:   uuid.NewString(),
		FeeUSD:         fee.Round(2).InexactFloat64(),
		LedgerEventIDs: []int64{},
		SettledAt:      time.Now().UTC(),
	}
	if receipt != nil {
		result.TxHash = receipt.TxHash
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"settlementId": result.SettlementID,
		"source":       source,
		"txHash":       result.TxHash,
	})

	if s.chain != nil && result.TxHash != "" {
		conf, err := s.chain.ConfirmReceipt(ctx, result.TxHash)
		if err != nil {
			logger.WithError(err).Warn("settlement transaction not confirmed")
			return nil, errors.NewSettlementError("confirm", err)
		}
		result.Confirmation = conf
	}

	var appendErrs []error
	for _, in := range inputs {
		ev, err := s.tax.RecordEvent(ctx, in)
		if err != nil {
			metrics.LedgerAppendFailures.WithLabelValues(source).Inc()
			logger.WithError(err).WithField("subject", in.Subject).Error("settlement succeeded but ledger append failed")
			appendErrs = append(appendErrs, fmt.Errorf("%s for %s: %w", in.Kind, in.Subject, err))
			continue
		}
		result.LedgerEventIDs = append(result.LedgerEventIDs, ev.ID)
	}
	if len(appendErrs) > 0 {
		result.LedgerError = stderrors.Join(appendErrs...).Error()
	}

	logger.WithField("ledgerEvents", len(result.LedgerEventIDs)).Info("settlement completed")
	return result, nil
}

// checkOwnership asks the chain whether seller holds enough units. It only
// applies to hex contracts and owners with an ERC-1155 token id.
func (s *SettlementService) checkOwnership(ctx context.Context, contract, seller, tokenID string, quantity decimal.Decimal) error {
	if s.chain == nil || !adapter.ValidateAddress(contract) || !adapter.ValidateAddress(seller) {
		return nil
	}
	id, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok {
		return nil
	}

	balance, err := s.chain.BalanceOf(ctx, contract, seller, id)
	if err != nil {
		return errors.NewSettlementError("balance check", err)
	}
	if decimal.NewFromBigInt(balance, 0).LessThan(quantity) {
		return errors.NewValidationError("quantity", fmt.Sprintf("seller holds %s units", balance))
	}
	return nil
}

func validateInputs(inputs []models.EventInput) error {
	for _, in := range inputs {
		if _, err := models.NewLedgerEvent(in); err != nil {
			return err
		}
	}
	return nil
}

// PassthroughSettler is used when settlement happens outside this service and
// callers only report the resulting transaction hash.
type PassthroughSettler struct{}

// List returns the caller-supplied transaction hash
func (PassthroughSettler) List(ctx context.Context, req ListingRequest) (*SettlementReceipt, error) {
	return &SettlementReceipt{TxHash: req.TxHash}, nil
}

// Trade returns the caller-supplied transaction hash
func (PassthroughSettler) Trade(ctx context.Context, req TradeRequest) (*SettlementReceipt, error) {
	return &SettlementReceipt{TxHash: req.TxHash}, nil
}
