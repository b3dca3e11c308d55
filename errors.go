// Package seos implements a cooperative, single-threaded sensor-hub
// micro-kernel plus a stillness-gated gyroscope bias calibration engine.
package seos

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a structured kernel error with context.
type Error struct {
	Op    string // operation that failed (e.g. "StartApps", "NewKernel")
	TID   int32  // task id, -1 if not applicable
	Code  ErrorCode
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.TID >= 0 {
		parts = append(parts, fmt.Sprintf("tid=%d", e.TID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("seos: %s (%s)", msg, strings.Join(parts, ", "))
	}

	return fmt.Sprintf("seos: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, comparing by Code only.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories surfaced as kernel
// diagnostics. These are informational: nothing on the dispatch or
// calibration hot path returns one, the conditions they name are handled by
// silent degradation (spec §7). No kernel operation, setup included,
// returns an *Error; the type is available for diagnostic classification
// and for tests that want to assert on a diagnostic's category.
type ErrorCode string

const (
	CodeResourceExhausted ErrorCode = "resource exhausted"
	CodeInvalidImage      ErrorCode = "invalid app image"
	CodeAppHostFailure    ErrorCode = "app host failure"
	CodeBiasRejected      ErrorCode = "bias rejected"
	CodeWatchdogReset     ErrorCode = "watchdog reset"
	CodeTaskNotFound      ErrorCode = "task not found"
	CodeAbort             ErrorCode = "abort"
	CodeInvalidConfig     ErrorCode = "invalid configuration"
)

// NewError creates a new structured error with no task association.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, TID: -1, Code: code, Msg: msg}
}

// NewTaskError creates a new structured error scoped to a task.
func NewTaskError(op string, tid int32, code ErrorCode, msg string) *Error {
	return &Error{Op: op, TID: tid, Code: code, Msg: msg}
}

// WrapError wraps an existing error under a new operation name.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if se, ok := inner.(*Error); ok {
		return &Error{Op: op, TID: se.TID, Code: se.Code, Msg: se.Msg, Inner: se.Inner}
	}
	return &Error{Op: op, TID: -1, Code: CodeAbort, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
