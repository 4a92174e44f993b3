// Package errors provides production-grade error handling for TraceFlow.
// It implements structured errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound   Code = "E101"
	CodeFilePermission Code = "E102"
	CodeInvalidFormat  Code = "E103"
	CodeInvalidTrace   Code = "E104"
	CodeEncodingError  Code = "E105"

	// Grouping errors (2xx)
	CodeInvalidRule   Code = "E201"
	CodeGroupingState Code = "E202"

	// Output errors (3xx)
	CodeWriteFailed    Code = "E301"
	CodeDiskFull       Code = "E302"
	CodeCompressionErr Code = "E303"
	CodeExportFailed   Code = "E304"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"
	CodePanic           Code = "E403"

	// Query errors (5xx)
	CodeQueryInit   Code = "E501"
	CodeQueryFailed Code = "E502"

	// Unknown
	CodeUnknown Code = "E999"
)

// TraceFlowError is the base error type for all TraceFlow errors.
type TraceFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *TraceFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *TraceFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *TraceFlowError) Is(target error) bool {
	if t, ok := target.(*TraceFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *TraceFlowError) WithContext(key string, value interface{}) *TraceFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TraceFlowError.
func New(code Code, message string) *TraceFlowError {
	return &TraceFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *TraceFlowError {
	if err == nil {
		return nil
	}

	return &TraceFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *TraceFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *TraceFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// GetCode extracts the error code from any error, returning CodeUnknown
// for errors that did not originate in this package.
func GetCode(err error) Code {
	var tfe *TraceFlowError
	if errors.As(err, &tfe) {
		return tfe.Code
	}
	return CodeUnknown
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *TraceFlowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// InvalidTrace creates a structural trace validation error.
func InvalidTrace(reason error) *TraceFlowError {
	return Wrap(reason, CodeInvalidTrace, "trace failed validation")
}

// InvalidRule creates a connect-rule validation error.
func InvalidRule(index int, reason string) *TraceFlowError {
	return New(CodeInvalidRule, "invalid connect rule").
		WithContext("rule", index).
		WithContext("reason", reason)
}

// ExportError creates a report export error.
func ExportError(format string, err error) *TraceFlowError {
	return Wrap(err, CodeExportFailed, "export failed").
		WithContext("format", format)
}
