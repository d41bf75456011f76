// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusFor maps a domain error to its HTTP status and problem title.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrStaleVersion):
		return http.StatusConflict, "Stale Version"
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, shared.ErrAlreadyProcessed):
		return http.StatusConflict, "Already Processed"
	case errors.Is(err, shared.ErrCardinalityMismatch):
		return http.StatusUnprocessableEntity, "Cardinality Mismatch"
	case errors.Is(err, shared.ErrTransient):
		return http.StatusServiceUnavailable, "Store Unavailable"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal errors are
// reported without detail.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}
