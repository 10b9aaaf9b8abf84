package identitymodel

import (
	"errors"
	"fmt"
)

// ErrorCode represents categorized error types.
// These codes are stable and can be used for programmatic error handling.
type ErrorCode string

const (
	// ErrCodeStructural marks malformed signature structure: wrong element,
	// missing mandatory Reference, duplicate Reference, missing argument.
	// Always fatal to the current operation, never retried.
	ErrCodeStructural ErrorCode = "structural"

	// ErrCodeUnsupportedAlgorithm marks an unrecognized canonicalization,
	// digest, or signature algorithm. Fatal, never silently substituted.
	ErrCodeUnsupportedAlgorithm ErrorCode = "unsupported_algorithm"

	// ErrCodeVerificationFailed marks a digest mismatch or an unverified
	// reference. Fatal to the signature-acceptance decision.
	ErrCodeVerificationFailed ErrorCode = "verification_failed"

	// ErrCodeRetrievalFailed marks a network or document error while fetching
	// trust configuration. Recoverable when cached data exists.
	ErrCodeRetrievalFailed ErrorCode = "retrieval_failed"

	// ErrCodeConfigurationMissing marks the fatal no-data case: retrieval
	// failed and no previously cached configuration exists to serve.
	ErrCodeConfigurationMissing ErrorCode = "configuration_missing"

	// ErrCodeCancelled marks a caller-initiated cancellation. It affects only
	// the caller whose signal fired, never shared cache state.
	ErrCodeCancelled ErrorCode = "cancelled"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// ErrNoConfiguration matches, via errors.Is, any error carrying
// ErrCodeConfigurationMissing: the fatal case where retrieval failed and no
// previously cached configuration exists to serve.
var ErrNoConfiguration = errors.New("no trust configuration available")

// AppError is a structured error with code, message, and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match category sentinels against coded errors.
func (e *AppError) Is(target error) bool {
	return target == ErrNoConfiguration && e.Code == ErrCodeConfigurationMissing
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StructuralError creates a structural error.
func StructuralError(message string) *AppError {
	return &AppError{Code: ErrCodeStructural, Message: message}
}

// UnsupportedAlgorithmError creates an unsupported-algorithm error naming the
// offending URI.
func UnsupportedAlgorithmError(kind, uri string) *AppError {
	return &AppError{
		Code:    ErrCodeUnsupportedAlgorithm,
		Message: fmt.Sprintf("unsupported %s algorithm %q", kind, uri),
	}
}

// VerificationError creates a verification failure with optional cause.
func VerificationError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeVerificationFailed, Message: message, Cause: cause}
}

// RetrievalError creates a retrieval failure naming the metadata address.
func RetrievalError(address string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeRetrievalFailed,
		Message: fmt.Sprintf("failed to retrieve document from %q", address),
		Cause:   cause,
	}
}

// NoConfigurationError creates the fatal no-data error, naming the metadata
// address for diagnosability.
func NoConfigurationError(address string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeConfigurationMissing,
		Message: fmt.Sprintf("no trust configuration available for %q", address),
		Cause:   cause,
	}
}

// CancelledError creates a cancellation error for a single caller.
func CancelledError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeCancelled, Message: message, Cause: cause}
}
