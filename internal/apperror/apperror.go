// Package apperror defines the typed errors surfaced to clients.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for clients and transport mapping.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidState        Kind = "INVALID_STATE"
	KindRoomClosed          Kind = "ROOM_CLOSED"
	KindRoomFull            Kind = "ROOM_FULL"
	KindDuplicateSubmission Kind = "DUPLICATE_SUBMISSION"
	KindServiceUnavailable  Kind = "SERVICE_UNAVAILABLE"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// Error is a classified, user-displayable error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether a client may retry with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindServiceUnavailable
}

// Sentinels for errors.Is checks.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrRoomClosed          = &Error{Kind: KindRoomClosed}
	ErrRoomFull            = &Error{Kind: KindRoomFull}
	ErrDuplicateSubmission = &Error{Kind: KindDuplicateSubmission}
	ErrServiceUnavailable  = &Error{Kind: KindServiceUnavailable}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newf(KindForbidden, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func InvalidState(format string, args ...any) *Error {
	return newf(KindInvalidState, format, args...)
}
func RoomClosed(format string, args ...any) *Error { return newf(KindRoomClosed, format, args...) }
func RoomFull(format string, args ...any) *Error   { return newf(KindRoomFull, format, args...) }
func DuplicateSubmission(format string, args ...any) *Error {
	return newf(KindDuplicateSubmission, format, args...)
}

// ServiceUnavailable wraps the underlying cause of a coordination timeout.
func ServiceUnavailable(err error, format string, args ...any) *Error {
	e := newf(KindServiceUnavailable, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-displayable message of err. Unclassified errors
// never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
