// Package apperrors defines the structured error codes observable in job
// error records, log fields, and HTTP error bodies across the engine.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomy values from the error handling design.
type Code string

const (
	InvalidPayload         Code = "INVALID_PAYLOAD"
	UnknownAction          Code = "UNKNOWN_ACTION"
	ValidationError        Code = "VALIDATION_ERROR"
	DependencyUnresolved   Code = "DEPENDENCY_UNRESOLVED"
	DuplicateAction        Code = "DUPLICATE_ACTION"
	DependencyCycle        Code = "DEPENDENCY_CYCLE"
	HandlerError           Code = "HANDLER_ERROR"
	JobTimeout             Code = "JOB_TIMEOUT"
	ShutdownInterrupted    Code = "SHUTDOWN_INTERRUPTED"
	CircuitOpen            Code = "CIRCUIT_OPEN"
	RateLimitExceeded      Code = "RATE_LIMIT_EXCEEDED"
	Upstream4xx            Code = "UPSTREAM_4XX"
	Upstream5xx            Code = "UPSTREAM_5XX"
	UpstreamTimeout        Code = "UPSTREAM_TIMEOUT"
	UpstreamConnect        Code = "UPSTREAM_CONNECT"
	QueueUnavailable       Code = "QUEUE_UNAVAILABLE"
	QueueConsistency       Code = "QUEUE_CONSISTENCY"
)

// Error is a structured, code-carrying error. It wraps an optional cause so
// callers can still errors.Is/As through to the underlying failure.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a structured error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a structured error that carries cause for errors.Is/As.
func Wrap(code Code, cause error) *Error {
	if cause == nil {
		return &Error{Code: code}
	}
	return &Error{Code: code, Message: cause.Error(), cause: cause}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or "" if err is not a structured error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
