// Package chimperrors contains generic errors that should be returned by code handling API requests.
// The gRPC interceptor and the HTTP handlers look for the error types defined in this file and
// set the gRPC status or HTTP status code accordingly.
package chimperrors

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/G-Research/chimp/internal/common/requestid"
)

// ErrConflict is returned when a request cannot proceed because another resource currently holds
// an exclusive slot, e.g., an experiment is already running. The caller may retry later.
type ErrConflict struct {
	Type      string // Resource type, e.g., "experiment"
	RunningId string // Id of the resource holding the slot
	Message   string // An optional message to include in the error message
}

func (err *ErrConflict) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("another %s running: %s", err.Type, err.RunningId)
	} else {
		s = fmt.Sprintf("another resource running: %s", err.RunningId)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q not found", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("resource %q not found", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "duty_percent"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	value := fmt.Sprintf("%v", err.Value)
	if s, ok := err.Value.(string); ok {
		value = strconv.Quote(s)
	}
	if err.Message == "" {
		return fmt.Sprintf("value %s is invalid for field %q", value, err.Name)
	}
	return fmt.Sprintf("value %s is invalid for field %q; %s", value, err.Name, err.Message)
}

// ErrInternal wraps a failure of the agent itself, e.g., metrics that could not be encoded.
// The wrapped error is logged but only Message is returned to callers.
type ErrInternal struct {
	Message string
	Err     error
}

func (err *ErrInternal) Error() string {
	return err.Message
}

func (err *ErrInternal) Unwrap() error {
	return err.Err
}

// CodeFromError maps error types to gRPC return codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func CodeFromError(err error) codes.Code {
	// If the error is nil or a gRPC status, return the embedded code.
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}

	{
		var e *ErrConflict
		if errors.As(err, &e) {
			return codes.AlreadyExists
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return codes.NotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return codes.InvalidArgument
		}
	}
	{
		var e *ErrInternal
		if errors.As(err, &e) {
			return codes.Internal
		}
	}

	return codes.Unknown
}

// HttpStatusFromError maps error types to HTTP status codes.
func HttpStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch CodeFromError(err) {
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// UnaryServerInterceptor returns an interceptor that extracts the cause of an error chain
// and returns it as a gRPC status error.
//
// To log the full error chain and return only the cause to the user, insert this interceptor before
// the logging interceptor.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		rv, err := handler(ctx, req)

		// If the error is nil or a gRPC status, return as-is
		if _, ok := status.FromError(err); ok {
			return rv, err
		}

		cause := errors.Cause(err)
		code := CodeFromError(cause)

		// If available, annotate the status with the request ID
		if id, ok := requestid.FromContext(ctx); ok {
			return rv, status.Error(code, fmt.Sprintf("[%s: %q] ", requestid.MetadataKey, id)+cause.Error())
		}
		return rv, status.Error(code, cause.Error())
	}
}
