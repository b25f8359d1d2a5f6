// Package app assembles the ledger services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/tax-ledger/internal/adapter"
	"github.com/tax-ledger/internal/config"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/retry"
	"github.com/tax-ledger/internal/service"
	"github.com/tax-ledger/internal/storage"
)

// App holds the wired services and the connections backing them
type App struct {
	Config      *config.Config
	Store       storage.EventStore
	Tax         *service.TaxService
	Admin       *service.AdminService
	Settlement  *service.SettlementService
	Checker     *service.ConsistencyChecker // nil unless a fee mirror is configured
	Broadcaster *service.EventBroadcaster

	logger  *logging.Logger
	closers []func()
}

// Build connects every configured backend and wires the services on top.
// On error, anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *App, err error) {
	a := &App{Config: cfg, logger: logger.WithComponent("app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	retryCfg := retry.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Store.RetryAttempts
	retryCfg.InitialDelay = cfg.Store.RetryInitialDelay

	if err := a.openEventStore(ctx); err != nil {
		return nil, err
	}

	a.Broadcaster = service.NewEventBroadcaster(logger)
	a.Tax = service.NewTaxService(a.Store, service.TaxConfig{
		LossHaircut:        cfg.Tax.LossHaircut,
		StrictInvariants:   cfg.Tax.StrictInvariants,
		SummaryConcurrency: cfg.Tax.SummaryConcurrency,
		Retry:              retryCfg,
	}, logger).WithBroadcaster(a.Broadcaster)

	if cfg.Cache.Enabled {
		a.openCache(ctx)
	}

	var fees storage.FeeSource = a.Store

	if cfg.Store.FeeAnalyticsBackend == config.BackendClickHouse {
		mirror, err := a.openFeeMirror(ctx)
		if err != nil {
			return nil, err
		}
		a.Tax.WithFeeRecorder(mirror)
		fees = mirror
		if ledger, ok := a.Store.(service.FeeLedger); ok {
			a.Checker = service.NewConsistencyChecker(ledger, mirror, logger)
		}
	}
	a.Admin = service.NewAdminService(fees, retryCfg, logger)

	var chain adapter.ChainReader
	if cfg.Chain.RPCURL != "" {
		client, err := adapter.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.MinConfirmations, logger)
		if err != nil {
			return nil, fmt.Errorf("dial chain rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		chain = client
	}
	a.Settlement = service.NewSettlementService(service.PassthroughSettler{}, chain, a.Tax, logger)

	return a, nil
}

func (a *App) openEventStore(ctx context.Context) error {
	switch a.Config.Store.EventBackend {
	case config.BackendMemory:
		a.logger.Warn("using in-memory event store; events are lost on exit")
		a.Store = storage.NewMemoryEventStore()
	default:
		db, err := storage.NewPostgresDB(ctx, &a.Config.Database.Postgres)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Store = storage.NewPostgresEventStore(db)
	}
	a.logger.WithField("backend", a.Config.Store.EventBackend).Info("event store ready")
	return nil
}

// openCache attaches the summary cache. Redis being down only costs latency,
// so a failed connection is logged and the service runs uncached.
func (a *App) openCache(ctx context.Context) {
	redis, err := storage.NewRedisCache(ctx, &a.Config.Database.Redis)
	if err != nil {
		a.logger.WithError(err).Warn("redis unavailable, summary cache disabled")
		return
	}
	a.closers = append(a.closers, func() {
		if err := redis.Close(); err != nil {
			a.logger.WithError(err).Warn("closing redis")
		}
	})
	variant := "h" + a.Config.Tax.LossHaircut.String()
	a.Tax.WithCache(storage.NewSummaryCache(redis, a.Config.Cache.TTL, variant, a.logger))
}

func (a *App) openFeeMirror(ctx context.Context) (*storage.ClickHouseFeeMirror, error) {
	db, err := storage.NewClickHouseDB(ctx, &a.Config.Database.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			a.logger.WithError(err).Warn("closing clickhouse")
		}
	})
	return storage.NewClickHouseFeeMirror(db), nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
