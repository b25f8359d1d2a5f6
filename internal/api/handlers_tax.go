package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/models"
	"github.com/tax-ledger/internal/report"
	"github.com/tax-ledger/internal/service"
)

// maxBatchSubjects caps POST /api/tax/summaries
const maxBatchSubjects = 100

// subjectParam reads the subject from ?user=, falling back to ?subject=
func subjectParam(r *http.Request) string {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("user")); v != "" {
		return v
	}
	return strings.TrimSpace(q.Get("subject"))
}

// wantsAssetDetail reports whether ?detail=assets was requested
func wantsAssetDetail(r *http.Request) (bool, error) {
	switch r.URL.Query().Get("detail") {
	case "":
		return false, nil
	case service.ViewAssets:
		return true, nil
	default:
		return false, errors.NewValidationError("detail", "only \"assets\" is supported")
	}
}

// handleRecordEvent handles POST /api/tax/events
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var in models.EventInput
	if err := parseJSONBody(r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	ev, err := s.taxService.RecordEvent(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, ev)
}

// handleListEvents handles GET /api/tax/events?user=
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	subject := subjectParam(r)
	events, err := s.taxService.ListEvents(r.Context(), subject)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"subject": models.NormalizeSubject(subject),
		"events":  events,
		"count":   len(events),
	})
}

// handleGetSummary handles GET /api/tax/summary?user=[&detail=assets]
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	detail, err := wantsAssetDetail(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := s.taxService.GetSummary(r.Context(), subjectParam(r), detail)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// handleGetSummaries handles POST /api/tax/summaries
func (s *Server) handleGetSummaries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subjects []string `json:"subjects"`
		Detail   bool     `json:"detail"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if len(req.Subjects) > maxBatchSubjects {
		respondError(w, r, errors.NewValidationError("subjects", fmt.Sprintf("at most %d subjects per request", maxBatchSubjects)))
		return
	}

	summaries, err := s.taxService.GetSummaries(r.Context(), req.Subjects, req.Detail)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": summaries,
	})
}

// handleExportCSV handles GET /api/tax/export?user=
// Errors are returned as text/plain since the success body is CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.taxService.ExportCSV(r.Context(), subjectParam(r), &buf); err != nil {
		respondPlainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
