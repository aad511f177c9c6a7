// Package simerr defines the typed error taxonomy shared by every layer of
// the backtest engine, from the market data loader up through the service
// facade.
package simerr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure independent of its message, so
// callers at a transport boundary (HTTP, CLI exit code) can branch on it
// without parsing strings.
type Code string

const (
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeUnknownStrategy      Code = "UNKNOWN_STRATEGY"
	CodeInsufficientData     Code = "INSUFFICIENT_DATA"
	CodeIOError              Code = "IO_ERROR"
	CodeParseError           Code = "PARSE_ERROR"
	CodeInsufficientCash     Code = "INSUFFICIENT_CASH"
	CodeInsufficientPosition Code = "INSUFFICIENT_POSITION"
	CodeInternal             Code = "INTERNAL"
)

// Error is a typed error carrying a Code alongside a human-readable
// message and, optionally, the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error around an existing error, preserving it for
// errors.Is/As chains.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err, or CodeInternal if err does not
// carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
