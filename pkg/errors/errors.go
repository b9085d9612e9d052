// Package errors defines the typed error every layer returns and how each
// code surfaces over HTTP.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeReference     Code = "REFERENCE_ERROR"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeUpstreamFetch Code = "UPSTREAM_FETCH_ERROR"
	CodeParse         Code = "PARSE_ERROR"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is the transport policy of a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	withDetails = 1 << iota
	retryable
)

func policy(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		DetailsAllowed: flags&withDetails != 0,
		Retryable:      flags&retryable != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    policy(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  policy(http.StatusForbidden, "Log in required", 0),
	CodeForbidden:     policy(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      policy(http.StatusNotFound, "resource not found", 0),
	CodeReference:     policy(http.StatusBadRequest, "referenced resource not found", withDetails),
	CodeConflict:      policy(http.StatusConflict, "conflict detected", withDetails),
	CodeStateConflict: policy(http.StatusBadRequest, "state transition disallowed", withDetails),
	CodeUpstreamFetch: policy(http.StatusBadRequest, "catalog source could not be fetched", withDetails),
	CodeParse:         policy(http.StatusBadRequest, "catalog document is malformed", withDetails),
	CodeRateLimit:     policy(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      policy(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    policy(http.StatusServiceUnavailable, "dependency unavailable", withDetails|retryable),
}

// MetadataFor falls back to the INTERNAL policy for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error carries a code, a client-facing message, optional details and the
// underlying cause.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches cause; a nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
