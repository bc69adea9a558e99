package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation       = fmt.Errorf("validation failed")
	ErrStoreWrite       = fmt.Errorf("durable append failed")
	ErrStoreRead        = fmt.Errorf("store read failed")
	ErrPeerUnreachable  = fmt.Errorf("peer unreachable")
	ErrSinkBackpressure = fmt.Errorf("subscriber buffer full")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// MapToHTTPStatus translates domain failures into transport codes.
// Unknown errors fall back to 500 so internals never leak to clients.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreWrite), errors.Is(err, ErrStoreRead):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
