package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// internalMessage replaces the message of 5xx errors that carry no client-safe text
const internalMessage = "An internal error occurred"

// mapServiceError maps an error onto a status code and a client-facing body.
func mapServiceError(err error) (int, types.ServiceError) {
	catErr := errors.Categorize(err)

	body := types.ServiceError{
		Code:    catErr.Code,
		Message: catErr.Message,
		Details: catErr.Details,
	}
	if catErr.Code == errors.CodeInternal {
		body.Message = internalMessage
		body.Details = nil
	}
	return catErr.StatusCode, body
}

// respondError writes err as a JSON error envelope and logs server-side failures.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("code", body.Code).Error("request failed")
	}

	respondJSON(w, status, ErrorResponse{Error: body})
}

// respondPlainError writes err as text/plain, for endpoints whose success body
// is not JSON.
func respondPlainError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("code", body.Code).Error("request failed")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%s: %s\n", body.Code, body.Message)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.NewValidationError("body", err.Error())
	}
	return nil
}
