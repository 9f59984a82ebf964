package quickmatch

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure for the caller. Every error returned by the engine's
// public methods is either a *Error or a wrapped storage failure.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindConflict            Kind = "conflict"
	KindTransient           Kind = "transient"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrInsufficientCredits = &Error{Kind: KindInsufficientCredits, Code: "InsufficientCredits", Message: "no booking credits remaining"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "not a party to this request"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "request already resolved"}
	ErrTransient           = &Error{Kind: KindTransient, Message: "temporarily unavailable"}

	ErrRequestResolved  = &Error{Kind: KindConflict, Code: "RequestAlreadyResolved", Message: "this request was already completed"}
	ErrRequestExpired   = &Error{Kind: KindConflict, Code: "RequestExpired", Message: "this request has expired"}
	ErrRequestNotFound  = &Error{Kind: KindNotFound, Code: "RequestNotFound", Message: "request not found"}
	ErrOfferNotFound    = &Error{Kind: KindNotFound, Code: "OfferNotFound", Message: "offer not found"}
	ErrBookingNotFound  = &Error{Kind: KindNotFound, Code: "BookingNotFound", Message: "booking not found"}
	ErrBusinessNotFound = &Error{Kind: KindNotFound, Code: "BusinessNotFound", Message: "business not found"}
)

func validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: "ValidationError", Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Code: "Forbidden", Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of err, or "" for untyped (internal) failures.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}
