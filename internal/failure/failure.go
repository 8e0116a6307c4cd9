// README: Closed failure taxonomy shared by the booking, trip and rating engines.
package failure

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable failure code returned to clients.
type Reason string

const (
	ReasonTripNotFound     Reason = "trip_not_found"
	ReasonTripNotScheduled Reason = "trip_not_scheduled"
	ReasonTripDeparted     Reason = "trip_departed"
	ReasonOwnTrip          Reason = "own_trip"
	ReasonNotEnoughSeats   Reason = "not_enough_seats"
	ReasonRouteMismatch    Reason = "route_mismatch"
	ReasonDuplicateRequest Reason = "duplicate_request"
	ReasonUnauthorized     Reason = "unauthorized"
	ReasonAlreadyRated     Reason = "already_rated"
	ReasonInvalidScore     Reason = "invalid_score"

	ReasonRequestNotFound Reason = "request_not_found"
	ReasonInvalidState    Reason = "invalid_state"
	ReasonInvalidInput    Reason = "invalid_input"
	ReasonTooFar          Reason = "too_far"
)

// Error is a domain failure. Values are compared by reason, so wrapped
// errors built with Wrap still match the sentinels through errors.Is.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrTripNotFound     = &Error{Reason: ReasonTripNotFound}
	ErrTripNotScheduled = &Error{Reason: ReasonTripNotScheduled}
	ErrTripDeparted     = &Error{Reason: ReasonTripDeparted}
	ErrOwnTrip          = &Error{Reason: ReasonOwnTrip}
	ErrNotEnoughSeats   = &Error{Reason: ReasonNotEnoughSeats}
	ErrRouteMismatch    = &Error{Reason: ReasonRouteMismatch}
	ErrDuplicateRequest = &Error{Reason: ReasonDuplicateRequest}
	ErrUnauthorized     = &Error{Reason: ReasonUnauthorized}
	ErrAlreadyRated     = &Error{Reason: ReasonAlreadyRated}
	ErrInvalidScore     = &Error{Reason: ReasonInvalidScore}
	ErrRequestNotFound  = &Error{Reason: ReasonRequestNotFound}
	ErrInvalidState     = &Error{Reason: ReasonInvalidState}
	ErrInvalidInput     = &Error{Reason: ReasonInvalidInput}
	ErrTooFar           = &Error{Reason: ReasonTooFar}
)

// Wrap attaches detail to a sentinel without changing its reason.
func Wrap(sentinel *Error, format string, args ...any) error {
	return &Error{Reason: sentinel.Reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf returns the domain reason carried by err, or "" when err is not a
// domain failure.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsDomain reports whether err is one of the closed domain failures.
func IsDomain(err error) bool {
	return ReasonOf(err) != ""
}

// IsNotFound reports whether err names a missing trip or request.
func IsNotFound(err error) bool {
	switch ReasonOf(err) {
	case ReasonTripNotFound, ReasonRequestNotFound:
		return true
	}
	return false
}
