// Package apierr maps internal error values onto the API error envelope
// {error:{code, message, details?}} consumed by the external HTTP layer.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/draftboard/draftboard/internal/quota"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
	"github.com/draftboard/draftboard/internal/storage/protected"
)

// API error codes.
const (
	CodeInvalidJSON        = "INVALID_JSON"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeMissingParameter   = "MISSING_PARAMETER"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeForbidden          = "FORBIDDEN"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeNotFound           = "NOT_FOUND"
	CodeVersionConflict    = "VERSION_CONFLICT"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeCircuitOpen        = "CIRCUIT_OPEN"
)

// statusByCode is the HTTP status for each code. Quota codes are added
// dynamically by Status since they carry the resource name.
var statusByCode = map[string]int{
	CodeInvalidJSON:        http.StatusBadRequest,
	CodeValidationError:    http.StatusBadRequest,
	CodeInvalidInput:       http.StatusBadRequest,
	CodeMissingParameter:   http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeInvalidToken:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodePermissionDenied:   http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeVersionConflict:    http.StatusConflict,
	CodeAlreadyExists:      http.StatusConflict,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeInternal:           http.StatusInternalServerError,
	CodeUpstream:           http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeCircuitOpen:        http.StatusServiceUnavailable,
}

// Status returns the HTTP status for an API error code. Unknown codes,
// including the QUOTA_* family, map to 500.
func Status(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Envelope is the wire form of an API error.
type Envelope struct {
	Error Body `json:"error"`
}

// Body carries the code, message, and optional development-only details.
type Body struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Classify converts an internal error into its code, message, and details.
// Details are only populated for errors that carry structured context; the
// caller elides them outside development mode via Write's devMode flag.
func Classify(err error) (code, message string, details interface{}) {
	var validationErr *spec.ValidationError
	if errors.As(err, &validationErr) {
		return CodeValidationError, "spec validation failed", validationErr.Issues
	}

	var quotaErr *quota.ExceededError
	if errors.As(err, &quotaErr) {
		return quotaErr.Code, quotaErr.Error(), map[string]interface{}{
			"resource": quotaErr.Resource,
			"limit":    quotaErr.Limit,
			"actual":   quotaErr.Actual,
		}
	}

	var openErr *protected.CircuitOpenError
	if errors.As(err, &openErr) {
		return CodeCircuitOpen, "storage temporarily unavailable", map[string]interface{}{
			"retryAfterMs": openErr.RetryAfter.Milliseconds(),
		}
	}

	var retryErr *storage.RetryExhaustedError
	if errors.As(err, &retryErr) {
		return CodeVersionConflict, "update contention, retry later", nil
	}

	if errors.Is(err, storage.ErrNotFound) {
		return CodeNotFound, "not found", nil
	}
	if errors.Is(err, storage.ErrClosed) {
		return CodeServiceUnavailable, "service shutting down", nil
	}

	return CodeInternal, "internal error", err.Error()
}

// Write renders err as a JSON error envelope on w. Details are included
// only in development mode.
func Write(w http.ResponseWriter, err error, devMode bool) {
	code, message, details := Classify(err)
	if !devMode {
		details = nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(code))
	_ = json.NewEncoder(w).Encode(Envelope{Error: Body{
		Code:    code,
		Message: message,
		Details: details,
	}})
}
