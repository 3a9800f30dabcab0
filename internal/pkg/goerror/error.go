// Package goerror defines the structured error shared by every module. Use
// cases return values built by the constructors below; the HTTP layer reads
// the code to pick a status and the fields to render validation detail.
package goerror

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels returned by outbound adapters so use cases never handle driver
// error types directly.
var (
	// ErrNotFound indicates that the requested resource could not be found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates that the request could not be completed due to a conflict.
	ErrConflict = errors.New("resource conflict")
)

// Type buckets errors by origin.
type Type int

const (
	// TypeServer represents server-side failures.
	TypeServer Type = iota
	// TypeBusiness represents business rule violations.
	TypeBusiness
	// TypeValidation represents input validation failures.
	TypeValidation
)

var typeNames = map[Type]string{
	TypeServer:     "ERROR_TYPE_SERVER",
	TypeBusiness:   "ERROR_TYPE_BUSINESS",
	TypeValidation: "ERROR_TYPE_VALIDATION",
}

// String returns the wire name of the error type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return "ERROR_TYPE_UNKNOWN"
}

// Code is a stable identifier that maps one-to-one onto an HTTP status.
type Code int

const (
	// CodeInternal represents an internal or unspecified error.
	CodeInternal Code = iota
	// CodeInvalidFormat indicates a request body that could not be decoded.
	CodeInvalidFormat
	// CodeInvalidInput indicates a decoded body that failed validation.
	CodeInvalidInput
	// CodeNotFound indicates a missing resource.
	CodeNotFound
	// CodeConflict indicates a conflict such as a duplicate.
	CodeConflict
	// CodeTooManyRequest indicates rate limiting.
	CodeTooManyRequest
	// CodeUnauthorized indicates authentication failure.
	CodeUnauthorized
	// CodeForbidden indicates authorization failure.
	CodeForbidden
	// CodeTimeout indicates a timeout.
	CodeTimeout
	// CodeUnavailable indicates a required downstream dependency is unavailable.
	CodeUnavailable
)

var codeNames = map[Code]string{
	CodeInternal:       "ERROR_CODE_INTERNAL",
	CodeInvalidFormat:  "ERROR_CODE_INVALID_FORMAT",
	CodeInvalidInput:   "ERROR_CODE_INVALID_INPUT",
	CodeNotFound:       "ERROR_CODE_NOT_FOUND",
	CodeConflict:       "ERROR_CODE_CONFLICT",
	CodeTooManyRequest: "ERROR_CODE_TOO_MANY_REQUESTS",
	CodeUnauthorized:   "ERROR_CODE_UNAUTHORIZED",
	CodeForbidden:      "ERROR_CODE_FORBIDDEN",
	CodeUnavailable:    "ERROR_CODE_UNAVAILABLE",
}

// String returns the wire name of the error code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}

	return "ERROR_CODE_INTERNAL"
}

var statusByCode = map[Code]int{
	CodeInternal:       http.StatusInternalServerError,
	CodeInvalidFormat:  http.StatusBadRequest,
	CodeInvalidInput:   http.StatusUnprocessableEntity,
	CodeNotFound:       http.StatusNotFound,
	CodeConflict:       http.StatusConflict,
	CodeTooManyRequest: http.StatusTooManyRequests,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeForbidden:      http.StatusForbidden,
	CodeTimeout:        http.StatusRequestTimeout,
	CodeUnavailable:    http.StatusServiceUnavailable,
}

// Error carries a user-facing message, a type, a stable code, optional
// per-field validation detail, and an optional wrapped cause.
type Error struct {
	err     error
	msg     string
	errType Type
	code    Code
	fields  map[string]string
}

// Error implements the error interface, preferring the wrapped cause, then
// the message, then a per-type fallback.
func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.msg != "" {
		return e.msg
	}

	switch e.errType {
	case TypeValidation:
		return "Validation violation"
	case TypeBusiness:
		return "Logical business not meet with requirement"
	case TypeServer:
		return "Internal error"
	}

	return "Unknown error"
}

// String returns a verbose form for debugging and logs.
func (e *Error) String() string {
	return fmt.Sprintf(
		"Error Type: %s, Code: %s, Message: %s, Underlying Error: %v",
		e.errType, e.code, e.msg, e.err,
	)
}

// Msg returns the user-facing message, if set.
func (e *Error) Msg() string {
	return e.msg
}

// Type returns the error bucket.
func (e *Error) Type() Type {
	return e.errType
}

// Code returns the stable error code.
func (e *Error) Code() Code {
	return e.code
}

// Fields returns the field-to-message validation detail, if any.
func (e *Error) Fields() map[string]string {
	return e.fields
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.err
}

// StatusCode maps the error code to an HTTP status.
func (e *Error) StatusCode() int {
	if status, ok := statusByCode[e.code]; ok {
		return status
	}

	return http.StatusInternalServerError
}

func newError(err error, msg string, et Type, code Code) error {
	return &Error{err: err, msg: msg, errType: et, code: code}
}

// NewServer wraps err as a server-type error.
func NewServer(err error) error {
	return newError(err, "Internal server error", TypeServer, CodeInternal)
}

// NewBusiness builds a business-type error with the given message and code.
func NewBusiness(msg string, code Code) error {
	return newError(nil, msg, TypeBusiness, code)
}

// NewInvalidInput builds a validation error. With err set, the error wraps
// it; otherwise kv is read as field, message pairs and rendered as per-field
// detail. An odd-length kv degrades to an invalid-format error.
func NewInvalidInput(err error, kv ...string) error {
	if err != nil {
		return newError(err, "Validation error", TypeValidation, CodeInvalidInput)
	}

	if len(kv)%2 != 0 {
		return newError(nil, "Invalid request body", TypeValidation, CodeInvalidFormat)
	}

	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}

	return &Error{msg: "Validation error", errType: TypeValidation, code: CodeInvalidInput, fields: fields}
}

// NewInvalidFormat builds a validation error for an undecodable request body.
// The first message, when given, replaces the default.
func NewInvalidFormat(msgs ...string) error {
	if len(msgs) == 0 {
		return newError(nil, "Invalid request body", TypeValidation, CodeInvalidFormat)
	}

	return newError(nil, msgs[0], TypeValidation, CodeInvalidFormat)
}
