// Package apperr classifies failures of booking and sync operations. Each
// error carries a message key that the HTTP layer translates for the caller;
// the wrapped cause is for server logs only.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimit
	KindForbidden
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindForbidden:
		return "forbidden"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Key + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Key
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, key string) *Error { return &Error{Kind: kind, Key: key} }

func Wrap(kind Kind, key string, err error) *Error { return &Error{Kind: kind, Key: key, Err: err} }

func Validation(key string, err error) *Error { return Wrap(KindValidation, key, err) }
func NotFound(key string) *Error              { return New(KindNotFound, key) }
func Conflict(key string) *Error              { return New(KindConflict, key) }
func RateLimit(key string) *Error             { return New(KindRateLimit, key) }
func Forbidden(key string) *Error             { return New(KindForbidden, key) }
func Transient(err error) *Error              { return Wrap(KindTransient, KeyUnavailable, err) }
func Internal(err error) *Error               { return Wrap(KindInternal, KeyInternal, err) }

// KindOf returns KindInternal for errors not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// KeyOf returns the message key, or KeyInternal for foreign errors.
func KeyOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Key
	}
	return KeyInternal
}

// Message keys. Each has an entry in every i18n catalog.
const (
	KeyInternal            = "error.internal"
	KeyUnavailable         = "error.unavailable"
	KeyInvalidRequest      = "booking.invalid_request"
	KeyInvalidPhone        = "booking.invalid_phone"
	KeyBotCheckFailed      = "booking.bot_check_failed"
	KeyTooManyBookings     = "booking.too_many_bookings"
	KeyServiceNotFound     = "booking.service_not_found"
	KeyEmployeeNotFound    = "booking.employee_not_found"
	KeyEmployeeNotBookable = "booking.employee_not_bookable"
	KeySlotTaken           = "booking.slot_taken"
	KeyClaimInvalid        = "claim.invalid"
	KeyClaimNotFound       = "claim.not_found"
	KeySyncForbidden       = "sync.forbidden"
	KeyInvalidDate         = "slots.invalid_date"
)
