package auth

import (
	"errors"
	"fmt"
)

// Shared sentinels used by the store layer.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
)

// Code is a stable machine-readable failure code. The transport status is
// derived from it at the HTTP edge; the code itself is the contract.
type Code string

const (
	CodeTokenMalformed          Code = "TOKEN_MALFORMED"
	CodeTokenExpired            Code = "TOKEN_EXPIRED"
	CodeTokenRevoked            Code = "TOKEN_REVOKED"
	CodeIdentityNotFound        Code = "IDENTITY_NOT_FOUND"
	CodeIdentityUnavailable     Code = "IDENTITY_UNAVAILABLE"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeInsufficientRole        Code = "INSUFFICIENT_ROLE"
	CodeAccountNotVerified      Code = "ACCOUNT_NOT_VERIFIED"
	CodeRateLimitExceeded       Code = "RATE_LIMIT_EXCEEDED"
)

// Error carries a code plus metadata safe to surface to the caller.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// With returns a copy of the error with an extra metadata field.
func (e *Error) With(key, value string) *Error {
	meta := make(map[string]string, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	return &Error{Code: e.Code, Message: e.Message, Meta: meta}
}

// CodeOf extracts the failure code from err, when present.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}
