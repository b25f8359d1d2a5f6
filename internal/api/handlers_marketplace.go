package api

import (
	"net/http"

	"github.com/tax-ledger/internal/service"
)

// handleListItem handles POST /api/marketplace/list
func (s *Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	var req service.ListingRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.settlementService.ListItem(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleExecuteTrade handles POST /api/marketplace/trade
// A trade whose ledger append failed still returns 201: the settlement
// happened, and the failure is reported in ledgerError.
func (s *Server) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req service.TradeRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.settlementService.ExecuteTrade(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}
