package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration marks missing or invalid startup configuration.
	ErrConfiguration   = errors.New("configuration error")
	// ErrNotFound marks operations on a resource that does not exist.
	ErrNotFound        = errors.New("not found")
	// ErrUpstream marks a failed call to an embedding, chat, vector or storage provider.
	ErrUpstream        = errors.New("upstream provider error")
	// ErrAccessDenied marks a request outside the permitted document root.
	ErrAccessDenied    = errors.New("access denied")
	// ErrInvalidArgument marks a malformed request.
	ErrInvalidArgument = errors.New("invalid argument")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Upstream wraps err so that errors.Is(err, ErrUpstream) holds while the
// original cause stays reachable.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return &upstreamError{op: op, err: err}
}

type upstreamError struct {
	op  string
	err error
}

func (e *upstreamError) Error() string { return e.op + ": " + e.err.Error() }

func (e *upstreamError) Unwrap() []error { return []error{ErrUpstream, e.err} }

// FromError maps a domain error onto an HTTP status and error code.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return New(http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrAccessDenied):
		return New(http.StatusForbidden, "access_denied", err)
	case errors.Is(err, ErrUpstream):
		return New(http.StatusBadGateway, "upstream_error", err)
	case errors.Is(err, ErrConfiguration):
		return New(http.StatusInternalServerError, "configuration_error", err)
	default:
		return New(http.StatusInternalServerError, "internal_error", err)
	}
}
