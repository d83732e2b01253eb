package gideonerrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error category to the status code the handlers return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAgentUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstreamTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
