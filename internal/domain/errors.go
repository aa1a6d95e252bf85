package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable rejection code.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
	CodeInactive           Code = "INACTIVE"
	CodeKindMismatch       Code = "KIND_MISMATCH"
	CodeCapacityExceeded   Code = "CAPACITY_EXCEEDED"
	CodeIntervalInvalid    Code = "INTERVAL_INVALID"
	CodePolicyWindow       Code = "POLICY_WINDOW"
	CodePolicyNotice       Code = "POLICY_NOTICE"
	CodePolicyDuration     Code = "POLICY_DURATION"
	CodeStoreUnavailable   Code = "STORE_UNAVAILABLE"
	CodeTimeout            Code = "TIMEOUT"
	CodeInvalidQuantity    Code = "INVALID_QUANTITY"
	CodeAlreadyCancelled   Code = "ALREADY_CANCELLED"
	CodeConflict           Code = "CONFLICT"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
)

// Error is the single typed result callers see for a rejected operation.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Code   Code
	Detail string
	// Available is set for CAPACITY_EXCEEDED.
	Available int
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Reject builds a rejection with a detail message.
func Reject(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CapacityExceeded builds a CAPACITY_EXCEEDED rejection carrying the remaining units.
func CapacityExceeded(available int) *Error {
	if available < 0 {
		available = 0
	}
	return &Error{
		Code:      CodeCapacityExceeded,
		Detail:    fmt.Sprintf("available=%d", available),
		Available: available,
	}
}

var (
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrForbidden          = &Error{Code: CodeForbidden}
	ErrInactive           = &Error{Code: CodeInactive}
	ErrKindMismatch       = &Error{Code: CodeKindMismatch}
	ErrCapacityExceeded   = &Error{Code: CodeCapacityExceeded}
	ErrIntervalInvalid    = &Error{Code: CodeIntervalInvalid}
	ErrPolicyWindow       = &Error{Code: CodePolicyWindow}
	ErrPolicyNotice       = &Error{Code: CodePolicyNotice}
	ErrPolicyDuration     = &Error{Code: CodePolicyDuration}
	ErrStoreUnavailable   = &Error{Code: CodeStoreUnavailable}
	ErrTimeout            = &Error{Code: CodeTimeout}
	ErrInvalidQuantity    = &Error{Code: CodeInvalidQuantity}
	ErrAlreadyCancelled   = &Error{Code: CodeAlreadyCancelled}
	ErrConflict           = &Error{Code: CodeConflict}
	ErrInvariantViolation = &Error{Code: CodeInvariantViolation}
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument}
)

// ErrTransient marks store failures worth retrying (lock contention,
// serialization failures, dropped connections). It never reaches callers.
var ErrTransient = errors.New("transient store failure")

// CodeOf extracts the rejection code from err, or "" when err is not a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError returns the typed rejection wrapped in err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
