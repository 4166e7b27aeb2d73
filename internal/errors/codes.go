package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for designer operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Input errors (4xx equivalent)
	ErrCodeInvalidConfiguration ErrorCode = 1000
	ErrCodeUnknownCollection    ErrorCode = 1001
	ErrCodeInvalidDesign        ErrorCode = 1002
	ErrCodeInvalidWorkload      ErrorCode = 1003

	// Design is well formed but does not fit the cluster
	ErrCodeInfeasibleDesign ErrorCode = 1500

	// Server errors (5xx equivalent)
	ErrCodeInternal    ErrorCode = 2000
	ErrCodeUnavailable ErrorCode = 2001
	ErrCodeCanceled    ErrorCode = 2002
)

// DesignerError represents a structured error with code and context
type DesignerError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *DesignerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *DesignerError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts DesignerError to gRPC status
func (e *DesignerError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *DesignerError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidConfiguration, ErrCodeInvalidDesign, ErrCodeInvalidWorkload:
		return codes.InvalidArgument
	case ErrCodeUnknownCollection:
		return codes.NotFound
	case ErrCodeInfeasibleDesign:
		return codes.FailedPrecondition
	case ErrCodeUnavailable:
		return codes.Unavailable
	case ErrCodeCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// NewDesignerError creates a new DesignerError
func NewDesignerError(code ErrorCode, message string, cause error) *DesignerError {
	return &DesignerError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *DesignerError) WithDetail(key string, value interface{}) *DesignerError {
	e.Details[key] = value
	return e
}

func InvalidConfiguration(field, reason string) *DesignerError {
	return NewDesignerError(ErrCodeInvalidConfiguration, fmt.Sprintf("invalid configuration %s: %s", field, reason), nil).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

func UnknownCollection(collection string) *DesignerError {
	return NewDesignerError(ErrCodeUnknownCollection, fmt.Sprintf("unknown collection '%s'", collection), nil).
		WithDetail("collection", collection)
}

func InvalidDesign(collection, reason string) *DesignerError {
	return NewDesignerError(ErrCodeInvalidDesign, fmt.Sprintf("invalid design for collection '%s': %s", collection, reason), nil).
		WithDetail("collection", collection).
		WithDetail("reason", reason)
}

func InvalidWorkload(sessionID int64, reason string) *DesignerError {
	return NewDesignerError(ErrCodeInvalidWorkload, fmt.Sprintf("invalid session %d: %s", sessionID, reason), nil).
		WithDetail("session_id", sessionID).
		WithDetail("reason", reason)
}

func InfeasibleDesign(footprint, budget int64) *DesignerError {
	return NewDesignerError(ErrCodeInfeasibleDesign, fmt.Sprintf("estimated footprint %d bytes exceeds memory budget %d bytes", footprint, budget), nil).
		WithDetail("footprint_bytes", footprint).
		WithDetail("budget_bytes", budget)
}

func InternalError(message string, cause error) *DesignerError {
	return NewDesignerError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *DesignerError {
	return NewDesignerError(ErrCodeUnavailable, message, cause)
}

func Canceled(message string, cause error) *DesignerError {
	return NewDesignerError(ErrCodeCanceled, message, cause)
}

// IsDesignerError checks if an error is, or wraps, a DesignerError
func IsDesignerError(err error) bool {
	var de *DesignerError
	return stderrors.As(err, &de)
}

// GetCode extracts the error code from an error chain
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var de *DesignerError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// IsUnknownCollection reports whether err carries ErrCodeUnknownCollection
func IsUnknownCollection(err error) bool {
	return GetCode(err) == ErrCodeUnknownCollection
}

// IsInvalidConfiguration reports whether err carries ErrCodeInvalidConfiguration
func IsInvalidConfiguration(err error) bool {
	return GetCode(err) == ErrCodeInvalidConfiguration
}

// IsInfeasibleDesign reports whether err carries ErrCodeInfeasibleDesign
func IsInfeasibleDesign(err error) bool {
	return GetCode(err) == ErrCodeInfeasibleDesign
}

// ToGRPCError converts any error into a gRPC status error
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	var de *DesignerError
	if stderrors.As(err, &de) {
		return de.ToGRPCStatus().Err()
	}
	return status.Error(codes.Internal, err.Error())
}
