package router

import (
	"errors"
	"fmt"
)

var (
	// ErrNilHandler is returned when a route is registered without a handler.
	ErrNilHandler = errors.New("router: route has no handler")

	// ErrDuplicateRouteName is returned when two routes share a name.
	ErrDuplicateRouteName = errors.New("router: duplicate route name")

	// ErrRouteNotFound is returned by URL for unknown route names.
	ErrRouteNotFound = errors.New("router: no route with that name")
)

// HTTPError is an error that carries the status code and message to answer with.
// Generic handlers return it to choose their error response.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message to be sent in the response body
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}
