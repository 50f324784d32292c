// Package apperr is the caller-visible error taxonomy. Every rejection the
// engines produce carries a machine-readable Kind plus a human-readable reason.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindIdentityMismatch Kind = "identity_mismatch"
	KindForbidden        Kind = "forbidden"
	KindStateViolation   Kind = "state_violation"
	KindUnavailable      Kind = "unavailable"
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation"
)

// Sentinels for errors.Is. An *Error unwraps to the sentinel of its kind.
var (
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrForbidden        = errors.New("forbidden")
	ErrStateViolation   = errors.New("state violation")
	ErrUnavailable      = errors.New("record store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
)

var sentinels = map[Kind]error{
	KindIdentityMismatch: ErrIdentityMismatch,
	KindForbidden:        ErrForbidden,
	KindStateViolation:   ErrStateViolation,
	KindUnavailable:      ErrUnavailable,
	KindNotFound:         ErrNotFound,
	KindValidation:       ErrValidation,
}

// Status maps a kind to the HTTP status an outer surface would use.
func (k Kind) Status() int {
	switch k {
	case KindIdentityMismatch, KindForbidden:
		return http.StatusForbidden
	case KindStateViolation:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := sentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func newError(kind Kind, code, message string, details any, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details, cause: cause}
}

func IdentityMismatch(message string) *Error {
	return newError(KindIdentityMismatch, "IDENTITY_MISMATCH", message, nil, nil)
}

func Forbidden(message string) *Error {
	return newError(KindForbidden, "FORBIDDEN", message, nil, nil)
}

func StateViolation(code, message string, details any) *Error {
	return newError(KindStateViolation, code, message, details, nil)
}

func NotFound(message string) *Error {
	return newError(KindNotFound, "NOT_FOUND", message, nil, nil)
}

func Unavailable(message string, cause error) *Error {
	return newError(KindUnavailable, "UNAVAILABLE", message, nil, cause)
}

// FromStore wraps a record store failure as unavailable unless it already
// carries a kind.
func FromStore(message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Unavailable(message, err)
}

func Validation(message string, details any) *Error {
	return newError(KindValidation, "VALIDATION_ERROR", message, details, nil)
}

// FromValidator converts validator field errors into a Validation error whose
// details map each failing field to the tag it failed.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Validation(err.Error(), nil)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return Validation("invalid input", details)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether err was caused by the caller rather than by
// the record store.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindIdentityMismatch, KindForbidden, KindStateViolation, KindNotFound, KindValidation:
		return true
	default:
		return false
	}
}
