// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/metrics"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/service"
	"github.com/tax-ledger/internal/types"
)

// Service interfaces for dependency injection and testing

// TaxServiceInterface defines the ledger and reporting operations
type TaxServiceInterface interface {
	RecordEvent(ctx context.Context, in models.EventInput) (*models.LedgerEvent, error)
	ListEvents(ctx context.Context, subject string) ([]models.LedgerEvent, error)
	GetSummary(ctx context.Context, subject string, detail bool) (*service.SummaryResponse, error)
	GetSummaries(ctx context.Context, subjects []string, detail bool) ([]*service.SummaryResponse, error)
	ExportCSV(ctx context.Context, subject string, w io.Writer) error
}

// AdminServiceInterface defines the fee reporting operations
type AdminServiceInterface interface {
	GetFeeStats(ctx context.Context, window types.TimeWindow) (*service.FeeStats, error)
	GetRevenueSplit(ctx context.Context, window types.TimeWindow) (*service.RevenueReport, error)
}

// SettlementServiceInterface defines the marketplace settlement pipelines
type SettlementServiceInterface interface {
	ListItem(ctx context.Context, req service.ListingRequest) (*service.SettlementResult, error)
	ExecuteTrade(ctx context.Context, req service.TradeRequest) (*service.SettlementResult, error)
}

// ConsistencyCheckerInterface compares the ledger with the fee mirror
type ConsistencyCheckerInterface interface {
	CheckFees(ctx context.Context, window types.TimeWindow) (*service.ConsistencyCheckResult, error)
	Backfill(ctx context.Context, window types.TimeWindow) (*service.BackfillResult, error)
}

// Server represents the HTTP API server.
type Server struct {
	router            *mux.Router
	httpServer        *http.Server
	taxService        TaxServiceInterface
	adminService      AdminServiceInterface
	settlementService SettlementServiceInterface
	checker           ConsistencyCheckerInterface
	broadcaster       *service.EventBroadcaster
	rateLimiter       *RateLimiter
	config            *ServerConfig
	logger            *logging.Logger
	stopSweep         chan struct{}
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

// Services bundles what the server routes to. Checker and Broadcaster are optional.
type Services struct {
	Tax         TaxServiceInterface
	Admin       AdminServiceInterface
	Settlement  SettlementServiceInterface
	Checker     ConsistencyCheckerInterface
	Broadcaster *service.EventBroadcaster
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services, logger *logging.Logger) *Server {
	s := &Server{
		router:            mux.NewRouter(),
		taxService:        services.Tax,
		adminService:      services.Admin,
		settlementService: services.Settlement,
		checker:           services.Checker,
		broadcaster:       services.Broadcaster,
		rateLimiter:       NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst),
		config:            config,
		logger:            logger.WithComponent("api"),
		stopSweep:         make(chan struct{}),
	}

	s.setupRouter()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// order matters: ids and logging wrap everything else
	s.router.Use(RequestIDMiddleware(s.logger))
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(metrics.Middleware)
	s.router.Use(RateLimitMiddleware(s.rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	// Ledger and reports
	api.HandleFunc("/tax/events", s.handleRecordEvent).Methods(http.MethodPost)
	api.HandleFunc("/tax/events", s.handleListEvents).Methods(http.MethodGet)
	api.HandleFunc("/tax/summary", s.handleGetSummary).Methods(http.MethodGet)
	api.HandleFunc("/tax/summaries", s.handleGetSummaries).Methods(http.MethodPost)
	api.HandleFunc("/tax/export", s.handleExportCSV).Methods(http.MethodGet)
	if s.broadcaster != nil {
		api.HandleFunc("/tax/stream", s.handleStream).Methods(http.MethodGet)
	}

	// Admin
	api.HandleFunc("/admin/fees", s.handleFeeStats).Methods(http.MethodGet)
	api.HandleFunc("/admin/revenue", s.handleRevenueSplit).Methods(http.MethodGet)
	if s.checker != nil {
		api.HandleFunc("/admin/fees/consistency", s.handleFeeConsistency).Methods(http.MethodGet)
		api.HandleFunc("/admin/fees/backfill", s.handleFeeBackfill).Methods(http.MethodPost)
	}

	// Marketplace settlement
	api.HandleFunc("/marketplace/list", s.handleListItem).Methods(http.MethodPost)
	api.HandleFunc("/marketplace/trade", s.handleExecuteTrade).Methods(http.MethodPost)

	// CORS preflight for any path; CORSMiddleware answers it
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tax-ledger",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go s.sweepLimiters()

	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	close(s.stopSweep)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) sweepLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.rateLimiter.Sweep(); n > 0 {
				s.logger.WithField("removed", n).Debug("dropped idle rate limiters")
			}
		case <-s.stopSweep:
			return
		}
	}
}
