package errmap

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// httpMapping defines a domain error to HTTP status/code mapping.
type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings maps domain errors to HTTP status codes and error codes.
// Order matters: first match wins (via errors.Is).
var httpMappings = []httpMapping{
	// Endpoint errors
	{domain.ErrEndpointNotFound, http.StatusNotFound, "ENDPOINT_NOT_FOUND"},
	{domain.ErrNameAlreadyBound, http.StatusConflict, "NAME_ALREADY_BOUND"},
	{domain.ErrEndpointClosed, http.StatusGone, "ENDPOINT_CLOSED"},

	// Validation errors: 400
	{domain.ErrInvalidName, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrInvalidPort, http.StatusBadRequest, "INVALID_ARGUMENT"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},

	// Availability
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}

// WriteHTTPError writes err as a JSON error body with its mapped status.
func WriteHTTPError(w http.ResponseWriter, err error) {
	he := ToHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.StatusCode)
	_ = json.NewEncoder(w).Encode(he)
}
