package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal          Kind = "internal"
	KindInvalidRange      Kind = "invalid_range"
	KindOverlap           Kind = "overlap"
	KindSlotUnavailable   Kind = "slot_unavailable"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "validation"
)

var defaultMessages = map[Kind]string{
	KindInternal:          "internal error",
	KindInvalidRange:      "invalid time range",
	KindOverlap:           "window overlaps an existing window",
	KindSlotUnavailable:   "requested time is not available",
	KindNotFound:          "resource not found",
	KindInvalidTransition: "invalid status transition",
	KindValidation:        "validation failed",
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidRange      = &Error{Kind: KindInvalidRange}
	ErrOverlap           = &Error{Kind: KindOverlap}
	ErrSlotUnavailable   = &Error{Kind: KindSlotUnavailable}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
)

// Error is the single error type returned by the scheduling core.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the stable, user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return defaultMessages[e.Kind]
	}
	return defaultMessages[KindInternal]
}

func NotFound(what string, id any) *Error {
	return New(KindNotFound, "%s %v not found", what, id)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func SlotUnavailable(format string, args ...any) *Error {
	return New(KindSlotUnavailable, format, args...)
}
