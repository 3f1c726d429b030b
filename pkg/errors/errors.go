// Package errors carries typed errors through the connector and
// pipeline stack. Every error has a category, an optional cause, and
// the call stack of its origin; retry decisions key off the category.
package errors

import (
	"errors"
	"runtime"

	stringpool "github.com/parallaxworks/parallax/pkg/strings"
)

// ErrorType categorizes an error for retry and reporting decisions.
type ErrorType string

// Error categories. Usage errors are caller mistakes surfaced before
// any work starts; rate limit, timeout, and connection errors are the
// transient kinds worth retrying.
const (
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeUsage          ErrorType = "usage"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeConnection     ErrorType = "connection"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeData           ErrorType = "data"
	ErrorTypeCapability     ErrorType = "capability"
	ErrorTypeHealth         ErrorType = "health"
)

// Retryable reports whether errors of this category are transient.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	}
	return false
}

// Error is a categorized error with an optional cause and the stack
// captured where it was first created.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is one frame of a captured call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return stringpool.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return stringpool.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key-value pair for structured reporting.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given category.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf creates an error of the given category with a formatted
// message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap layers a category and message over err. It returns nil when
// err is nil. If err already carries a captured stack, the original
// stack is kept so the deepest origin survives repeated wrapping.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}

	var inner *Error
	if errors.As(err, &inner) {
		wrapped.Stack = inner.Stack
	} else {
		wrapped.Stack = captureStack(1)
	}
	return wrapped
}

// IsRetryable reports whether err is a typed error in a transient
// category.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type.Retryable()
}

// IsType reports whether err carries the given category. The check
// sees the outermost typed error, so wrapping changes the answer.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errType
}

// IsUsage reports whether err is a caller mistake rather than a
// runtime failure.
func IsUsage(err error) bool {
	return IsType(err, ErrorTypeUsage)
}

// captureStack records the stack starting skip frames above the
// caller.
func captureStack(skip int) []StackFrame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]StackFrame, 0, n)
	for {
		frame, more := frames.Next()
		stack = append(stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return stack
}
