/*
errors.go - Error taxonomy for the shift engine

PURPOSE:
  Every public operation fails with exactly one of five codes. Callers
  surface the code and message verbatim; only internal errors are worth
  retrying.

ERROR CODES:
  invalid-argument     Missing/malformed ids, out-of-domain values
  not-found            Shift or request does not exist
  permission-denied    Actor is not the assigned caregiver / not an admin
  failed-precondition  Status, time window, proximity or ordering violated
  internal             Unexpected store failure

USAGE:
  if errors.Is(err, shift.ErrFailedPrecondition) {
      // refresh state, do not retry blindly
  }

  var serr *shift.Error
  if errors.As(err, &serr) {
      log.Println(serr.Code, serr.Message)
  }
*/
package shift

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrInternal           = errors.New("internal error")

	// ErrConcurrentModification is returned by stores when a conditional
	// write finds a different Version than the caller read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicatePending is returned by stores when a second pending
	// request of the same type is inserted for a shift.
	ErrDuplicatePending = errors.New("pending request already exists")
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

type Code string

const (
	CodeInvalidArgument    Code = "invalid-argument"
	CodeNotFound           Code = "not-found"
	CodePermissionDenied   Code = "permission-denied"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeInternal           Code = "internal"
)

var sentinels = map[Code]error{
	CodeInvalidArgument:    ErrInvalidArgument,
	CodeNotFound:           ErrNotFound,
	CodePermissionDenied:   ErrPermissionDenied,
	CodeFailedPrecondition: ErrFailedPrecondition,
	CodeInternal:           ErrInternal,
}

// Error is the error returned by every public engine operation.
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

// Unwrap exposes both the code sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{sentinels[e.Code]}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidArgument(format string, args ...any) error {
	return newError(CodeInvalidArgument, format, args...)
}

func notFound(format string, args ...any) error {
	return newError(CodeNotFound, format, args...)
}

func permissionDenied(format string, args ...any) error {
	return newError(CodePermissionDenied, format, args...)
}

func failedPrecondition(format string, args ...any) error {
	return newError(CodeFailedPrecondition, format, args...)
}

func internal(cause error, format string, args ...any) error {
	e := newError(CodeInternal, format, args...)
	e.Cause = cause
	return e
}

// classify converts store-level errors into the taxonomy. Errors that
// already carry a code pass through unchanged.
func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return err
	}
	switch {
	case errors.Is(err, ErrConcurrentModification):
		return &Error{Code: CodeFailedPrecondition, Message: "record was modified concurrently, reload and retry", Cause: err}
	case errors.Is(err, ErrDuplicatePending):
		return &Error{Code: CodeFailedPrecondition, Message: "a pending request of this type already exists", Cause: err}
	case errors.Is(err, ErrNotFound):
		return &Error{Code: CodeNotFound, Message: action, Cause: err}
	}
	return internal(err, "failed to %s", action)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// CodeOf returns the code carried by err, or internal when none is.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable message carried by err.
func MessageOf(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Message
	}
	return err.Error()
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeInternal
}

// IsClientError returns true if the caller should fix its input or refresh state.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodePermissionDenied, CodeFailedPrecondition:
		return true
	}
	return false
}

// IsNotFound returns true if the error indicates a missing shift or request.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
