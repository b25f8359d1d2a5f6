package service

import (
	"context"
	"time"

	"github.com/tax-ledger/internal/accounting"
	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/retry"
	"github.com/tax-ledger/internal/storage"
	"github.com/tax-ledger/internal/types"
)

// FeeStats is the fee total over a window
type FeeStats struct {
	TotalFeesUSD float64    `json:"totalFeesUSD"`
	FeeEvents    int64      `json:"feeEvents"`
	From         *time.Time `json:"from"`
	To           *time.Time `json:"to"`
}

// RevenueReport is the stakeholder split of fees over a window
type RevenueReport struct {
	accounting.RoundedRevenueSplit
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// AdminService reports platform-wide fee figures
type AdminService struct {
	fees     storage.FeeSource
	retryCfg *retry.RetryConfig
	logger   *logging.Logger
}

// NewAdminService creates an admin service reading totals from fees
func NewAdminService(fees storage.FeeSource, retryCfg *retry.RetryConfig, logger *logging.Logger) *AdminService {
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	return &AdminService{
		fees:     fees,
		retryCfg: retryCfg,
		logger:   logger.WithComponent("admin_service"),
	}
}

// GetFeeStats totals fees recorded within window (bounds inclusive)
func (s *AdminService) GetFeeStats(ctx context.Context, window types.TimeWindow) (*FeeStats, error) {
	totals, err := s.sumFees(ctx, window)
	if err != nil {
		return nil, err
	}
	return &FeeStats{
		TotalFeesUSD: accounting.RoundUSD(totals.TotalFeesUSD),
		FeeEvents:    totals.FeeEvents,
		From:         window.From,
		To:           window.To,
	}, nil
}

// GetRevenueSplit divides fees recorded within window between stakeholders
func (s *AdminService) GetRevenueSplit(ctx context.Context, window types.TimeWindow) (*RevenueReport, error) {
	totals, err := s.sumFees(ctx, window)
	if err != nil {
		return nil, err
	}

	split := accounting.SplitRevenue(totals.TotalFeesUSD)
	if err := split.Verify(); err != nil {
		return nil, errors.NewInternalError("revenue split does not balance", err)
	}

	return &RevenueReport{
		RoundedRevenueSplit: split.Rounded(),
		From:                window.From,
		To:                  window.To,
	}, nil
}

func (s *AdminService) sumFees(ctx context.Context, window types.TimeWindow) (*storage.FeeTotals, error) {
	if window.From != nil && window.To != nil && window.From.After(*window.To) {
		return nil, errors.NewValidationError("from", "must not be after to")
	}

	totals, err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) (*storage.FeeTotals, error) {
		return s.fees.SumFees(ctx, window)
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to total fees")
		return nil, err
	}
	return totals, nil
}
