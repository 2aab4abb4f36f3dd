// Package ndnerr defines the shared error taxonomy for the NDN chunk-transfer
// engine, the stream transport, and the ObjectMap state tree.
package ndnerr

import (
	"errors"
	"fmt"
)

// Code identifies an error category shared across subsystems.
type Code string

const (
	// Transport
	CodeConnectFailed Code = "connect_failed"
	CodeTimeout       Code = "timeout"
	CodeOutcomeBreak  Code = "outcome_break"
	CodeInvalidData   Code = "invalid_data"

	// Session
	CodeOk                Code = "ok"
	CodeWouldBlock        Code = "would_block"
	CodeInterrupted       Code = "interrupted"
	CodeRedirect          Code = "redirect"
	CodeWaitRedirect      Code = "wait_redirect"
	CodeNotFound          Code = "not_found"
	CodeReject            Code = "reject"
	CodeSessionRedirect   Code = "session_redirect"
	CodeSessionWaitRedirect Code = "session_wait_redirect"

	// State
	CodeErrorState   Code = "error_state"
	CodeUnmatch      Code = "unmatch"
	CodeAlreadyExists Code = "already_exists"

	// Concurrency
	CodeAlreadyLocked Code = "already_locked"
	CodeAborted       Code = "aborted"

	// Permission
	CodePermissionDenied Code = "permission_denied"

	// Integrity
	CodeInvalidFormat Code = "invalid_format"
)

// retryable reports whether a Code is conventionally safe to retry without
// caller-visible side effects.
var retryable = map[Code]bool{
	CodeTimeout:      true,
	CodeWouldBlock:   true,
	CodeWaitRedirect: true,
	CodeConnectFailed: true,
}

// Error is the concrete error type returned across the ndn/stream/objectmap
// packages. It wraps an optional cause and carries a stable Code for callers
// that need to branch on classification rather than string-match.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether retrying the operation that produced this error
// may succeed without additional caller action.
func (e *Error) Retryable() bool {
	return retryable[e.Code]
}

// New builds an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Code to an existing cause.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not one of ours.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
