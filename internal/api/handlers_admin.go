package api

import (
	"net/http"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/types"
)

// parseWindow reads the inclusive ?from=&to= bounds
func parseWindow(r *http.Request) (types.TimeWindow, error) {
	q := r.URL.Query()

	from, err := types.ParseTimeBound(q.Get("from"))
	if err != nil {
		return types.TimeWindow{}, errors.NewValidationError("from", err.Error())
	}
	to, err := types.ParseTimeBound(q.Get("to"))
	if err != nil {
		return types.TimeWindow{}, errors.NewValidationError("to", err.Error())
	}
	return types.TimeWindow{From: from, To: to}, nil
}

// handleFeeStats handles GET /api/admin/fees?from=&to=
func (s *Server) handleFeeStats(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	stats, err := s.adminService.GetFeeStats(r.Context(), window)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleRevenueSplit handles GET /api/admin/revenue?from=&to=
func (s *Server) handleRevenueSplit(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	split, err := s.adminService.GetRevenueSplit(r.Context(), window)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, split)
}

// handleFeeConsistency handles GET /api/admin/fees/consistency?from=&to=
func (s *Server) handleFeeConsistency(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.checker.CheckFees(r.Context(), window)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleFeeBackfill handles POST /api/admin/fees/backfill?from=&to=
func (s *Server) handleFeeBackfill(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.checker.Backfill(r.Context(), window)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
