// Package errmap provides wire protocol mappers for domain errors.
// Every IPC domain error has an explicit gRPC and HTTP mapping.
package errmap

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// ErrorDomain tags the ErrorInfo detail attached to every mapped status.
const ErrorDomain = "ipc.v1"

// grpcMappings maps domain errors to gRPC status codes and ErrorInfo reasons.
// Order matters: first match wins (via errors.Is), so refinements of
// ErrInvalidInput come before it.
//
// Mapping follows gRPC status codes reference:
// https://grpc.github.io/grpc/core/md_doc_statuscodes.html
var grpcMappings = []struct {
	err    error
	code   codes.Code
	reason string
}{
	// Endpoint errors
	{domain.ErrEndpointNotFound, codes.NotFound, "ENDPOINT_NOT_FOUND"},
	{domain.ErrNameAlreadyBound, codes.AlreadyExists, "NAME_ALREADY_BOUND"},
	{domain.ErrEndpointClosed, codes.FailedPrecondition, "ENDPOINT_CLOSED"},

	// Validation errors
	{domain.ErrInvalidName, codes.InvalidArgument, "INVALID_NAME"},
	{domain.ErrInvalidPort, codes.InvalidArgument, "INVALID_PORT"},
	{domain.ErrInvalidInput, codes.InvalidArgument, "INVALID_INPUT"},

	// Availability
	{domain.ErrUnavailable, codes.Unavailable, "UNAVAILABLE"},
}

// ToGRPCStatus converts a domain error to a gRPC status carrying an
// ErrorInfo detail that names the exact sentinel.
// The returned status can be sent directly to gRPC clients.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	for _, m := range grpcMappings {
		if errors.Is(err, m.err) {
			st := status.New(m.code, err.Error())
			detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: m.reason, Domain: ErrorDomain})
			if derr != nil {
				return st
			}
			return detailed
		}
	}
	// Never expose internal error details to clients
	return status.New(codes.Internal, "internal error")
}

// ToGRPCError converts a domain error to a gRPC error (implements error interface).
func ToGRPCError(err error) error {
	return ToGRPCStatus(err).Err()
}

// FromGRPCError extracts the gRPC status code from an error.
// Returns codes.Unknown if the error is not a gRPC status error.
func FromGRPCError(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// ToDomainError maps a gRPC status received by a client back to the domain
// sentinel it was produced from. The ErrorInfo reason identifies the sentinel
// exactly; without one, the last mapping for the code is used, which is the
// most general (InvalidArgument becomes ErrInvalidInput).
// Unmapped codes are returned unchanged.
func ToDomainError(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	if reason := errorReason(st); reason != "" {
		for _, m := range grpcMappings {
			if m.reason == reason {
				return errors.Join(m.err, err)
			}
		}
	}
	var match error
	for _, m := range grpcMappings {
		if m.code == st.Code() {
			match = m.err
		}
	}
	if match == nil {
		return err
	}
	return errors.Join(match, err)
}

func errorReason(st *status.Status) string {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason()
		}
	}
	return ""
}
