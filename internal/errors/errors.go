package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/tax-ledger/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed input (4xx, never retried)
	CategoryValidation ErrorCategory = "validation"
	// CategoryMissingParameter represents an omitted required identifier (4xx)
	CategoryMissingParameter ErrorCategory = "missing_parameter"
	// CategoryStore represents an unreachable persistence layer (5xx, retryable)
	CategoryStore ErrorCategory = "store"
	// CategoryInvariant represents an internal accounting invariant violation
	CategoryInvariant ErrorCategory = "invariant"
	// CategorySettlement represents a failed external settlement call
	CategorySettlement ErrorCategory = "settlement"
	// CategorySystem represents unexpected system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes surfaced to API clients
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeMissingSubject     = "MISSING_SUBJECT"
	CodeMissingParameter   = "MISSING_PARAMETER"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInvariantViolation = "COMPUTATION_INVARIANT_VIOLATION"
	CodeSettlementFailed   = "SETTLEMENT_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for response bodies
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Caller errors (4xx)

// NewValidationError creates a validation error for a malformed field
func NewValidationError(field string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewMissingSubjectError creates an error for an empty or absent subject
func NewMissingSubjectError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMissingParameter,
		StatusCode: http.StatusBadRequest,
		Code:       CodeMissingSubject,
		Message:    "missing subject (user address)",
	}
}

// NewMissingParameterError creates an error for an omitted required parameter
func NewMissingParameterError(param string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMissingParameter,
		StatusCode: http.StatusBadRequest,
		Code:       CodeMissingParameter,
		Message:    fmt.Sprintf("missing required parameter '%s'", param),
		Details: map[string]interface{}{
			"parameter": param,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimit,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

// NewInvariantViolationError reports disposals exceeding tracked acquisitions
func NewInvariantViolationError(message string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInvariant,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInvariantViolation,
		Message:    message,
		Details:    details,
	}
}

// System errors (5xx)

// NewStoreUnavailableError wraps a persistence failure. Safe to retry.
func NewStoreUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStore,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeStoreUnavailable,
		Message:    fmt.Sprintf("event store unavailable during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewSettlementError wraps a failed settlement collaborator call
func NewSettlementError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySettlement,
		StatusCode: http.StatusBadGateway,
		Code:       CodeSettlementFailed,
		Message:    fmt.Sprintf("settlement failed during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error, looking through wrapped errors
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError maps a bare ServiceError code onto a category
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	catErr := &CategorizedError{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}

	switch err.Code {
	case CodeValidation:
		catErr.Category, catErr.StatusCode = CategoryValidation, http.StatusBadRequest
	case CodeMissingSubject, CodeMissingParameter:
		catErr.Category, catErr.StatusCode = CategoryMissingParameter, http.StatusBadRequest
	case CodeNotFound:
		catErr.Category, catErr.StatusCode = CategoryNotFound, http.StatusNotFound
	case CodeStoreUnavailable:
		catErr.Category, catErr.StatusCode = CategoryStore, http.StatusServiceUnavailable
	case CodeInvariantViolation:
		catErr.Category, catErr.StatusCode = CategoryInvariant, http.StatusUnprocessableEntity
	default:
		catErr.Category, catErr.StatusCode = CategorySystem, http.StatusInternalServerError
	}

	return catErr
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryStore:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsCode reports whether err categorizes to the given error code
func IsCode(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}
