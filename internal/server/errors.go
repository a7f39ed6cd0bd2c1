package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/lookup"
	"github.com/jonathan/job-catalog/internal/syncer"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	switch {
	case errors.As(err, &validation), errors.Is(err, lookup.ErrMissingRefNr):
		return http.StatusBadRequest
	case errors.Is(err, syncer.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
