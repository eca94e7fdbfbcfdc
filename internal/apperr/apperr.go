// Package apperr defines the error kinds shared by the store, the crawler and
// the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUpstreamFetch   = errors.New("upstream fetch failure")
	ErrPersistence     = errors.New("persistence failure")
	ErrConflict        = errors.New("conflict")
	// ErrInconsistent marks a session that did not reach completed after its
	// batch drained. It is logged for repair and never returned to clients.
	ErrInconsistent = errors.New("inconsistent state")
)

// Wrap attaches a kind to err so callers can classify it with errors.Is.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, kind)
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, err)
}

// Invalid builds an InvalidArgument error with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// HTTPStatus maps an error kind to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamFetch):
		return http.StatusBadGateway
	case errors.Is(err, ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
