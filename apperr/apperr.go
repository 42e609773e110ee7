// Package apperr defines the error taxonomy shared across the service.
// Every user-visible failure carries a Code so callers can tell a retryable
// provisioning failure from malformed input without parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodePathEscape        Code = "PATH_ESCAPE"
	CodeInvalidArchive    Code = "INVALID_ARCHIVE"
	CodeProvisionFailed   Code = "PROVISION_FAILED"
	CodeDependencyInstall Code = "DEPENDENCY_INSTALL_FAILED"
	CodeIO                Code = "IO_ERROR"
	CodeInternal          Code = "INTERNAL"
)

// HTTPStatus maps an error code to the status the REST layer responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest, CodeInvalidArchive:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePathEscape:
		return http.StatusForbidden
	case CodeProvisionFailed:
		return http.StatusBadGateway
	case CodeDependencyInstall, CodeIO:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the Code from err, or CodeInternal if err is not an *Error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
