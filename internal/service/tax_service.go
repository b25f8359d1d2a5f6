package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tax-ledger/internal/accounting"
	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/metrics"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/report"
	"github.com/tax-ledger/internal/retry"
	"github.com/tax-ledger/internal/storage"
)

// Summary views, part of the cache key
const (
	ViewTotals = "totals"
	ViewAssets = "assets"
)

// FeeRecorder receives fee-bearing events after they are stored
type FeeRecorder interface {
	Record(ctx context.Context, events ...*models.LedgerEvent) error
}

// TaxConfig holds the accounting parameters of a TaxService
type TaxConfig struct {
	LossHaircut        decimal.Decimal
	StrictInvariants   bool
	SummaryConcurrency int
	Retry              *retry.RetryConfig
}

// SummaryWarning describes a lot that went negative during replay
type SummaryWarning struct {
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	EventID      int64     `json:"eventId"`
	Asset        string    `json:"asset"`
	QuantityHeld string    `json:"quantityHeld"`
	Timestamp    time.Time `json:"timestamp"`
}

// AssetSummary is the per-asset breakdown, rounded for output
type AssetSummary struct {
	Asset             string  `json:"asset"`
	RealizedGainsUSD  float64 `json:"realizedGainsUSD"`
	RealizedLossesUSD float64 `json:"realizedLossesUSD"`
	QuantityHeld      string  `json:"quantityHeld"`
	AverageCostUSD    float64 `json:"averageCostUSD"`
}

// SummaryResponse is a subject's gain/loss summary as returned to callers
type SummaryResponse struct {
	Subject string `json:"subject"`
	accounting.RoundedSummary
	EventCount    int              `json:"eventCount"`
	EventsSkipped int              `json:"eventsSkipped"`
	Assets        []AssetSummary   `json:"assets,omitempty"`
	Warnings      []SummaryWarning `json:"warnings,omitempty"`
}

// TaxService records ledger events and computes summaries and exports from
// them. It holds no per-subject state: every summary is a fresh replay of the
// stored sequence (or a cached copy of exactly that replay).
type TaxService struct {
	store       storage.EventStore
	cache       *storage.SummaryCache
	fees        FeeRecorder
	broadcaster *EventBroadcaster
	cfg         TaxConfig
	logger      *logging.Logger
}

// NewTaxService creates a tax service over store
func NewTaxService(store storage.EventStore, cfg TaxConfig, logger *logging.Logger) *TaxService {
	if cfg.SummaryConcurrency < 1 {
		cfg.SummaryConcurrency = 1
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	return &TaxService{
		store:  store,
		cfg:    cfg,
		logger: logger.WithComponent("tax_service"),
	}
}

// WithCache enables summary memoization
func (s *TaxService) WithCache(cache *storage.SummaryCache) *TaxService {
	s.cache = cache
	return s
}

// WithFeeRecorder mirrors fee-bearing events into an analytics store
func (s *TaxService) WithFeeRecorder(fees FeeRecorder) *TaxService {
	s.fees = fees
	return s
}

// WithBroadcaster publishes recorded events to live subscribers
func (s *TaxService) WithBroadcaster(b *EventBroadcaster) *TaxService {
	s.broadcaster = b
	return s
}

// LossHaircut returns the configured haircut factor
func (s *TaxService) LossHaircut() decimal.Decimal {
	return s.cfg.LossHaircut
}

// RecordEvent validates and appends one event. Appends are not retried: a
// failure after the database committed would otherwise store the event twice.
func (s *TaxService) RecordEvent(ctx context.Context, in models.EventInput) (*models.LedgerEvent, error) {
	ev, err := models.NewLedgerEvent(in)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Append(ctx, ev)
	if err != nil {
		s.logger.WithError(err).WithField("subject", ev.Subject).Error("failed to append ledger event")
		return nil, err
	}

	metrics.EventsAppended.WithLabelValues(string(stored.Kind)).Inc()
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"eventId": stored.ID,
		"kind":    stored.Kind,
		"subject": stored.Subject,
		"asset":   stored.Asset.String(),
	}).Debug("ledger event recorded")

	if s.fees != nil && stored.Fee.IsPositive() {
		if err := s.fees.Record(ctx, stored); err != nil {
			// the ledger is the source of truth; analytics can be backfilled
			s.logger.WithError(err).WithField("eventId", stored.ID).Warn("failed to mirror fee event")
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.Publish(*stored)
	}

	return stored, nil
}

// ListEvents returns subject's events in replay order
func (s *TaxService) ListEvents(ctx context.Context, subject string) ([]models.LedgerEvent, error) {
	subject = models.NormalizeSubject(subject)
	if subject == "" {
		return nil, errors.NewMissingSubjectError()
	}
	return s.loadEvents(ctx, subject)
}

// GetSummary replays subject's events into a rounded summary. With detail the
// per-asset breakdown is included.
func (s *TaxService) GetSummary(ctx context.Context, subject string, detail bool) (*SummaryResponse, error) {
	subject = models.NormalizeSubject(subject)
	if subject == "" {
		return nil, errors.NewMissingSubjectError()
	}

	view := ViewTotals
	if detail {
		view = ViewAssets
	}

	start := time.Now()
	resp, cached, err := s.summarize(ctx, subject, view)
	if err != nil {
		return nil, err
	}
	metrics.SummaryDuration.WithLabelValues(cacheLabel(cached)).Observe(time.Since(start).Seconds())

	if len(resp.Warnings) > 0 && s.cfg.StrictInvariants {
		return nil, invariantError(subject, resp.Warnings)
	}
	return resp, nil
}

// GetSummaries computes summaries for several subjects in parallel, bounded by
// SummaryConcurrency. Results follow the order of subjects. Any failure fails
// the whole batch.
func (s *TaxService) GetSummaries(ctx context.Context, subjects []string, detail bool) ([]*SummaryResponse, error) {
	if len(subjects) == 0 {
		return nil, errors.NewMissingParameterError("subjects")
	}

	results := make([]*SummaryResponse, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SummaryConcurrency)

	for i, subject := range subjects {
		g.Go(func() error {
			resp, err := s.GetSummary(gctx, subject, detail)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExportCSV writes subject's raw events to w. Events are fully loaded before
// anything is written, so on error w is untouched.
func (s *TaxService) ExportCSV(ctx context.Context, subject string, w io.Writer) error {
	events, err := s.ListEvents(ctx, subject)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(w, events); err != nil {
		return errors.NewInternalError("failed to write CSV report", err)
	}
	return nil
}

func (s *TaxService) summarize(ctx context.Context, subject, view string) (*SummaryResponse, bool, error) {
	if s.cache != nil {
		fp, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) (storage.Fingerprint, error) {
			return s.store.Fingerprint(ctx, subject)
		})
		if err != nil {
			return nil, false, err
		}

		var cached SummaryResponse
		if s.cache.Load(ctx, s.cache.Key(subject, view, fp), &cached) {
			return &cached, true, nil
		}
	}

	events, err := s.loadEvents(ctx, subject)
	if err != nil {
		return nil, false, err
	}

	result := accounting.Replay(events, s.cfg.LossHaircut)
	resp := buildSummary(subject, view, result)

	if len(result.Violations) > 0 {
		metrics.InvariantViolations.Add(float64(len(result.Violations)))
		s.logger.WithFields(map[string]interface{}{
			"subject":    subject,
			"violations": len(result.Violations),
		}).Warn("replay left negative holdings")
	}

	if s.cache != nil {
		// keyed by what was actually replayed, not the earlier fingerprint read
		s.cache.Store(ctx, s.cache.Key(subject, view, storage.FingerprintOf(events)), resp)
	}

	return resp, false, nil
}

func (s *TaxService) loadEvents(ctx context.Context, subject string) ([]models.LedgerEvent, error) {
	events, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]models.LedgerEvent, error) {
		return s.store.ListBySubject(ctx, subject)
	})
	if err != nil {
		s.logger.WithError(err).WithField("subject", subject).Error("failed to load ledger events")
		return nil, err
	}
	return events, nil
}

func buildSummary(subject, view string, result *accounting.Result) *SummaryResponse {
	resp := &SummaryResponse{
		Subject:        subject,
		RoundedSummary: result.Summary.Rounded(),
		EventCount:     result.EventsApplied + result.EventsSkipped,
		EventsSkipped:  result.EventsSkipped,
	}

	if view == ViewAssets {
		resp.Assets = make([]AssetSummary, 0, len(result.Lots))
		for _, a := range result.Assets() {
			resp.Assets = append(resp.Assets, AssetSummary{
				Asset:             a.Asset,
				RealizedGainsUSD:  accounting.RoundUSD(a.RealizedGainsUSD),
				RealizedLossesUSD: accounting.RoundUSD(a.RealizedLossUSD),
				QuantityHeld:      a.QuantityHeld.String(),
				AverageCostUSD:    accounting.RoundUSD(a.AverageCostUSD),
			})
		}
	}

	for _, v := range result.Violations {
		resp.Warnings = append(resp.Warnings, SummaryWarning{
			Code:         errors.CodeInvariantViolation,
			Message:      fmt.Sprintf("disposal left %s holding %s units", v.Asset, v.QuantityHeld),
			EventID:      v.EventID,
			Asset:        v.Asset,
			QuantityHeld: v.QuantityHeld.String(),
			Timestamp:    v.Timestamp,
		})
	}

	return resp
}

func invariantError(subject string, warnings []SummaryWarning) error {
	return errors.NewInvariantViolationError(
		fmt.Sprintf("%d disposal(s) left negative holdings", len(warnings)),
		map[string]interface{}{
			"subject":    subject,
			"violations": warnings,
		},
	)
}

func cacheLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
