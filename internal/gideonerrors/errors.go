package gideonerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure categories the handlers care about.
var (
	// ErrMalformedRequest - bad or missing JSON body / required field (400, no retry)
	ErrMalformedRequest = errors.New("malformed request")

	// ErrAgentUnavailable - agent endpoint or id not configured / unreachable (503, operator hint)
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrUpstreamTransport - non-success status, missing body, or connection drop mid-stream
	ErrUpstreamTransport = errors.New("upstream transport failure")

	// ErrPersistence - store write failed; logged, never aborts an in-flight response
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound - unknown topic or resource (404)
	ErrNotFound = errors.New("not found")

	// ErrInternal - anything else (500)
	ErrInternal = errors.New("internal error")
)

// MalformedRequest wraps a message as a malformed request error.
func MalformedRequest(message string) error {
	return fmt.Errorf("%s: %w", message, ErrMalformedRequest)
}

// AgentUnavailable wraps a message as an agent availability error.
func AgentUnavailable(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAgentUnavailable)
}

// UpstreamTransport wraps a message as an upstream transport error.
func UpstreamTransport(message string) error {
	return fmt.Errorf("%s: %w", message, ErrUpstreamTransport)
}

// Persistence wraps a message as a persistence error.
func Persistence(message string) error {
	return fmt.Errorf("%s: %w", message, ErrPersistence)
}

// NotFound wraps a message as a not found error.
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// Internal wraps a message as an internal error.
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// Wrap adds context to an error without changing its category.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
