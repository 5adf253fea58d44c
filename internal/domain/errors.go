package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for IPC failure conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Endpoint errors
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrNameAlreadyBound = errors.New("endpoint name already bound")
	ErrEndpointClosed   = errors.New("endpoint closed")

	// Validation errors. ErrInvalidName and ErrInvalidPort refine
	// ErrInvalidInput, so errors.Is(err, ErrInvalidInput) matches all three.
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidName  = fmt.Errorf("%w: endpoint name", ErrInvalidInput)
	ErrInvalidPort  = fmt.Errorf("%w: port identifier", ErrInvalidInput)

	// Operational errors
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// clientErrors enumerates all domain errors caused by the caller's input or
// by the state of the endpoint it targeted.
var clientErrors = []error{
	ErrEndpointNotFound,
	ErrNameAlreadyBound,
	ErrEndpointClosed,
	ErrInvalidName,
	ErrInvalidPort,
	ErrInvalidInput,
}

// IsClientError returns true if the error represents a caller-side issue
// that will not succeed on retry without the caller changing something.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound returns true if the error represents a missing endpoint.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEndpointNotFound)
}

// IsClosed returns true if a blocked receive was ended by endpoint closure.
func IsClosed(err error) bool {
	return errors.Is(err, ErrEndpointClosed)
}

// IsRetryable returns true if the error represents a transient condition.
// No IPC error is transient: a missing or closed endpoint stays gone because
// port identifiers are never reissued.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
