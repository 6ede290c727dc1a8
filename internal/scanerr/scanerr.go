// Package scanerr defines the classified errors surfaced by the capture and analysis state
// machines. Every failure that reaches a presentation collaborator is one of these kinds.
package scanerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of a scan error
type Kind string

const (
	KindInvalidSource      Kind = "invalid_source"
	KindPermissionDenied   Kind = "permission_denied"
	KindDeviceNotFound     Kind = "device_not_found"
	KindDeviceAccessFailed Kind = "device_access_failed"
	KindNoImageSelected    Kind = "no_image_selected"
	KindMissingCredential  Kind = "missing_credential"
	KindProviderError      Kind = "provider_error"
	KindInvalidResponse    Kind = "invalid_response"
)

// Error is a classified error. Message is safe to show to the user.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, scanerr.ErrMissingCredential) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus maps the kind to a response status for the HTTP presentation layer.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidSource, KindNoImageSelected:
		return http.StatusBadRequest
	case KindMissingCredential:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindDeviceNotFound:
		return http.StatusNotFound
	case KindProviderError, KindInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidSource      = &Error{Kind: KindInvalidSource}
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied}
	ErrDeviceNotFound     = &Error{Kind: KindDeviceNotFound}
	ErrDeviceAccessFailed = &Error{Kind: KindDeviceAccessFailed}
	ErrNoImageSelected    = &Error{Kind: KindNoImageSelected}
	ErrMissingCredential  = &Error{Kind: KindMissingCredential}
	ErrProviderError      = &Error{Kind: KindProviderError}
	ErrInvalidResponse    = &Error{Kind: KindInvalidResponse}
)

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// InvalidSource reports a bad or empty input image.
func InvalidSource(message string, cause error) *Error {
	return newError(KindInvalidSource, message, cause)
}

// PermissionDenied reports that the user or platform refused camera access.
func PermissionDenied(message string, cause error) *Error {
	return newError(KindPermissionDenied, message, cause)
}

// DeviceNotFound reports that no compatible camera exists.
func DeviceNotFound(message string, cause error) *Error {
	return newError(KindDeviceNotFound, message, cause)
}

// DeviceAccessFailed reports any other camera acquisition failure.
func DeviceAccessFailed(message string, cause error) *Error {
	return newError(KindDeviceAccessFailed, message, cause)
}

func NoImageSelected() *Error {
	return newError(KindNoImageSelected, "please select an image first", nil)
}

func MissingCredential() *Error {
	return newError(KindMissingCredential, "an API credential is required before analyzing", nil)
}

// ProviderError carries the transport or provider message through for display.
func ProviderError(cause error) *Error {
	msg := "provider request failed"
	if cause != nil {
		msg = cause.Error()
	}
	return newError(KindProviderError, msg, cause)
}

// InvalidResponse reports a provider response that failed schema validation.
func InvalidResponse(message string, cause error) *Error {
	return newError(KindInvalidResponse, message, cause)
}

// KindOf returns the kind of a classified error, or "" when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns err as a classified *Error, classifying unknown errors as provider errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ProviderError(err)
}
