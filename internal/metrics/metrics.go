// Package metrics provides Prometheus instrumentation for the tax ledger.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsAppended counts ledger events stored, by kind.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxledger_events_appended_total",
		Help: "Ledger events appended, by kind",
	}, []string{"kind"})

	// SummaryDuration tracks the time to produce one subject summary.
	SummaryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxledger_summary_duration_seconds",
		Help:    "Time to load and replay a subject's events",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"cache"})

	// InvariantViolations counts disposals that left holdings negative.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxledger_invariant_violations_total",
		Help: "Disposals that drove a lot's held quantity below zero",
	})

	// LedgerAppendFailures counts ledger appends that failed after a successful settlement.
	LedgerAppendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxledger_ledger_append_failures_total",
		Help: "Ledger appends that failed after settlement, by source",
	}, []string{"source"})

	// StreamClients tracks connected websocket subscribers.
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taxledger_stream_clients",
		Help: "Connected event stream subscribers",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by route template, not raw path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
