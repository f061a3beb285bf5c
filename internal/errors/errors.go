// Package errors provides unified error handling with a closed error-code
// taxonomy shared by the capture, persistence, and HTTP layers.
package errors

import (
	"fmt"
	"net/http"
)

// Code classifies a failure. The set is closed: every error crossing a
// package boundary carries exactly one of these.
type Code int

const (
	CodeUnknown Code = iota
	// CodeConfiguration covers invalid directories, hosts, ports, and
	// intervals. Surfaced synchronously to the caller, never fatal.
	CodeConfiguration
	// CodeTargetNotFound means a named window or surface does not exist.
	CodeTargetNotFound
	// CodeInvalidTarget means an out-of-range monitor index or unknown mode.
	CodeInvalidTarget
	// CodeCaptureProvider covers underlying screen/window/GPU API failures.
	CodeCaptureProvider
	// CodePersistence covers file copy/write/rename failures.
	CodePersistence
	// CodeUnavailable marks transient resource failures worth retrying.
	CodeUnavailable
)

// String returns the code's stable name.
func (c Code) String() string {
	switch c {
	case CodeConfiguration:
		return "CONFIGURATION"
	case CodeTargetNotFound:
		return "TARGET_NOT_FOUND"
	case CodeInvalidTarget:
		return "INVALID_TARGET"
	case CodeCaptureProvider:
		return "CAPTURE_PROVIDER"
	case CodePersistence:
		return "PERSISTENCE"
	case CodeUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// httpStatusMap maps codes to the status the HTTP surface reports.
var httpStatusMap = map[Code]int{
	CodeConfiguration:   http.StatusBadRequest,
	CodeTargetNotFound:  http.StatusNotFound,
	CodeInvalidTarget:   http.StatusBadRequest,
	CodeCaptureProvider: http.StatusInternalServerError,
	CodePersistence:     http.StatusInternalServerError,
	CodeUnavailable:     http.StatusServiceUnavailable,
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code the HTTP surface maps this error to.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatusMap[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the code from an error, CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true if the error is potentially transient.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeCaptureProvider:
		return true
	default:
		return false
	}
}
