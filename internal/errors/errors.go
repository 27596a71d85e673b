// Package errors provides unified error handling with typed codes and
// user-actionable remediation text.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error for handling and reporting.
type Code int

const (
	CodeUnknown Code = iota
	CodeInvalidArgument
	CodeNotFound
	CodeUnauthorized
	CodeTimeout

	// Live session codes
	CodeCredentialInvalid
	CodeAudioPermission
	CodeAudioDevice
	CodeRelayUnavailable
	CodeRelayClosed
	CodeReconnectExhausted

	// Question pipeline codes
	CodeGenerationFailed
	CodeDeliveryFailed
	CodeStorageFailed
	CodeQuotaExceeded
	CodeCooldownActive
)

var codeNames = map[Code]string{
	CodeUnknown:            "UNKNOWN",
	CodeInvalidArgument:    "INVALID_ARGUMENT",
	CodeNotFound:           "NOT_FOUND",
	CodeUnauthorized:       "UNAUTHORIZED",
	CodeTimeout:            "TIMEOUT",
	CodeCredentialInvalid:  "CREDENTIAL_INVALID",
	CodeAudioPermission:    "AUDIO_PERMISSION",
	CodeAudioDevice:        "AUDIO_DEVICE",
	CodeRelayUnavailable:   "RELAY_UNAVAILABLE",
	CodeRelayClosed:        "RELAY_CLOSED",
	CodeReconnectExhausted: "RECONNECT_EXHAUSTED",
	CodeGenerationFailed:   "GENERATION_FAILED",
	CodeDeliveryFailed:     "DELIVERY_FAILED",
	CodeStorageFailed:      "STORAGE_FAILED",
	CodeQuotaExceeded:      "QUOTA_EXCEEDED",
	CodeCooldownActive:     "COOLDOWN_ACTIVE",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// AppError is the base error type with structured code and optional
// remediation guidance surfaced to the instructor.
type AppError struct {
	Code        Code
	Message     string
	Remediation string
	Cause       error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithRemediation attaches user-actionable guidance.
func (e *AppError) WithRemediation(text string) *AppError {
	e.Remediation = text
	return e
}

// AsAppError extracts the AppError from err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// CodeOf returns the code of err, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error (or any error it wraps) has a specific code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsFatal reports whether the error requires explicit user action before
// any retry is worthwhile.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeCredentialInvalid, CodeAudioPermission, CodeUnauthorized, CodeReconnectExhausted:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the error is potentially transient.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeRelayUnavailable, CodeTimeout, CodeGenerationFailed, CodeDeliveryFailed:
		return true
	default:
		return false
	}
}
