// Package errors provides standardized error types for fleetq.
package errors

import (
	"errors"
	"fmt"
)

// Error codes used across the pipeline.
const (
	CodeInvalidQuery      = "INVALID_QUERY"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeConnectionFailed  = "CONNECTION_FAILED"
	CodeTransactionFailed = "TRANSACTION_FAILED"
	CodeQueryFailed       = "QUERY_FAILED"
	CodeUnreachable       = "UNREACHABLE"
	CodeDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeInternal          = "INTERNAL_ERROR"
)

// FleetError represents a fleetq error with code, message, and optional details.
type FleetError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface.
func (e *FleetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *FleetError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *FleetError) Is(target error) bool {
	t, ok := target.(*FleetError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *FleetError) WithDetail(key string, value any) *FleetError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrInvalidQuery     = &FleetError{Code: CodeInvalidQuery, Message: "invalid query"}
	ErrNoSelect         = &FleetError{Code: CodeValidationFailed, Message: "query contains no SELECT statement"}
	ErrConnectionFailed = &FleetError{Code: CodeConnectionFailed, Message: "database connection failed"}
	ErrQueryTimeout     = &FleetError{Code: CodeDeadlineExceeded, Message: "query execution timeout"}
)

// New creates a new FleetError with the given code and message.
func New(code, message string) *FleetError {
	return &FleetError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new FleetError with a formatted message.
func Newf(code, format string, args ...any) *FleetError {
	return &FleetError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a FleetError.
func Wrap(err error, code, message string) *FleetError {
	if err == nil {
		return nil
	}
	return &FleetError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...any) *FleetError {
	if err == nil {
		return nil
	}
	return &FleetError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsValidationFailed checks if an error is a validation failure.
func IsValidationFailed(err error) bool {
	var fleetErr *FleetError
	if errors.As(err, &fleetErr) {
		return fleetErr.Code == CodeValidationFailed || fleetErr.Code == CodeInvalidQuery
	}
	return false
}

// IsConnectionFailed checks if an error is a connection failure.
func IsConnectionFailed(err error) bool {
	var fleetErr *FleetError
	if errors.As(err, &fleetErr) {
		return fleetErr.Code == CodeConnectionFailed || fleetErr.Code == CodeUnreachable
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var fleetErr *FleetError
	if errors.As(err, &fleetErr) {
		return fleetErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var fleetErr *FleetError
	if errors.As(err, &fleetErr) {
		return fleetErr.Message
	}
	return err.Error()
}
