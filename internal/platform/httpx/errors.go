// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Extender is implemented by errors that add RFC7807 extension members.
type Extender interface {
	ProblemExtensions() map[string]any
}

// StatusFor maps the ledger error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnbalanced):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrState):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInfrastructure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var titles = map[int]string{
	http.StatusUnprocessableEntity: "Unbalanced Entry",
	http.StatusBadRequest:          "Validation Failed",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Invalid State",
	http.StatusServiceUnavailable:  "Service Unavailable",
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal and infrastructure failures never leak their detail.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	title, ok := titles[status]
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	detail := err.Error()
	if status == http.StatusServiceUnavailable {
		detail = ""
	}
	var ext map[string]any
	var extender Extender
	if errors.As(err, &extender) {
		ext = extender.ProblemExtensions()
	}
	ProblemWith(w, status, title, detail, ext)
}
