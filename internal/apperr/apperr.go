package apperr

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller is expected to react to them.
type Kind string

const (
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindDeadlinePassed Kind = "DEADLINE_PASSED"
	KindForbidden      Kind = "FORBIDDEN"
	KindValidation     Kind = "VALIDATION"
	KindInternal       Kind = "INTERNAL"
)

// Error is the typed error returned by the booking domain.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the unwrap interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports two errors as equal when they carry the same code, so that
// errors built with WithMessage still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

var (
	ErrSlotNotFound               = &Error{Kind: KindNotFound, Code: "slot_not_found", Message: "calendar slot does not exist"}
	ErrSlotNotAvailable           = &Error{Kind: KindConflict, Code: "slot_not_available", Message: "calendar slot is not open for booking"}
	ErrSlotFull                   = &Error{Kind: KindConflict, Code: "slot_full", Message: "calendar slot has no remaining capacity"}
	ErrSlotUnderflow              = &Error{Kind: KindConflict, Code: "slot_underflow", Message: "calendar slot has no booking to release"}
	ErrBookingDeadlinePassed      = &Error{Kind: KindDeadlinePassed, Code: "booking_deadline_passed", Message: "booking deadline has passed"}
	ErrAppointmentNotFound        = &Error{Kind: KindNotFound, Code: "appointment_not_found", Message: "appointment does not exist"}
	ErrAlreadyFinal               = &Error{Kind: KindConflict, Code: "already_final", Message: "appointment is already in a final state"}
	ErrCancellationDeadlinePassed = &Error{Kind: KindDeadlinePassed, Code: "cancellation_deadline_passed", Message: "cancellation deadline has passed"}
	ErrForbidden                  = &Error{Kind: KindForbidden, Code: "forbidden", Message: "caller is not allowed to perform this action"}
	ErrValidation                 = &Error{Kind: KindValidation, Code: "validation_failed", Message: "invalid input"}
	ErrNotFound                   = &Error{Kind: KindNotFound, Code: "not_found", Message: "resource does not exist"}
	ErrConflict                   = &Error{Kind: KindConflict, Code: "conflict", Message: "resource conflicts with existing data"}
)

// Validation builds a validation error with a specific message.
func Validation(format string, args ...any) *Error {
	return ErrValidation.WithMessage(format, args...)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
