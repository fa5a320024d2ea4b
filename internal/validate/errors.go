package validate

import (
	"errors"
	"fmt"
)

// Error represents a failure that prevents a comparison from producing a
// verdict.
//
// Configuration errors abort a run before or during setup. I/O errors are
// scoped to one query: the suite records them as an errored verdict and
// moves on.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Query identifies the affected query, if any.
	Query string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes validation errors.
type ErrorCode string

const (
	// ErrCodeConfig indicates invalid paths, formats, query ids or status
	// records.
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeIO indicates a dataset could not be read.
	ErrCodeIO ErrorCode = "IO"
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Query != "" {
		msg = fmt.Sprintf("%s (query=%s)", msg, e.Query)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigError creates an Error for invalid configuration.
func NewConfigError(message string, err error) *Error {
	return &Error{Code: ErrCodeConfig, Message: message, Err: err}
}

// NewIOError creates an Error for a dataset that could not be read.
func NewIOError(query, message string, err error) *Error {
	return &Error{Code: ErrCodeIO, Message: message, Query: query, Err: err}
}

// IsConfigError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeConfig
	}
	return false
}

// IsIOError returns true if the error is a dataset I/O error.
func IsIOError(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeIO
	}
	return false
}
