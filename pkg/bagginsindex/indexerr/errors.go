// Package indexerr holds the error taxonomy shared by the key and field layers.
package indexerr

import (
	"errors"
	"fmt"
)

// Code classifies an indexing failure.
type Code string

const (
	// CodeDecode is returned when bytes do not match their type descriptor or a
	// value does not fit its encoding.
	CodeDecode Code = "decode"
	// CodeInvalidComposite is returned when a family claims a composite
	// comparator but its comparator is not a composite type.
	CodeInvalidComposite Code = "invalid_composite"
	// CodeUnsupportedType is returned for column types with no field mapping.
	CodeUnsupportedType Code = "unsupported_type"
	// CodeConfig is returned for missing or malformed index options.
	CodeConfig Code = "config"
	// CodeStorage covers segment and row store I/O failures.
	CodeStorage Code = "storage"
)

// Error is a coded error carrying the operation that raised it.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of op or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrDecode           = &Error{Code: CodeDecode}
	ErrInvalidComposite = &Error{Code: CodeInvalidComposite}
	ErrUnsupportedType  = &Error{Code: CodeUnsupportedType}
	ErrConfig           = &Error{Code: CodeConfig}
	ErrStorage          = &Error{Code: CodeStorage}
)

// New returns a coded error.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and op to err. A nil err yields nil.
func Wrap(err error, code Code, op, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Decode is shorthand for a decode error.
func Decode(op, format string, args ...any) *Error {
	return New(CodeDecode, op, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
