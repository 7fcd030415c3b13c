// Package apperr defines the user-visible error taxonomy shared by the
// services and the GraphQL layer.
package apperr

import (
	"errors"
	"fmt"
)

// Codes reported to clients under extensions.code.
const (
	CodeNotAuthenticated   = "UNAUTHENTICATED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnknownIdentity    = "UNKNOWN_IDENTITY"
	CodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	CodeBadUserInput       = "BAD_USER_INPUT"
	CodePostNotFound       = "POST_NOT_FOUND"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeInternal           = "INTERNAL"
)

// Error is a coded error whose message is safe to show to the caller.
type Error struct {
	code    string
	message string
	cause   error
}

func New(code, message string) *Error {
	return &Error{code: code, message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Code() string    { return e.code }
func (e *Error) Message() string { return e.message }
func (e *Error) Unwrap() error   { return e.cause }

// Is matches any Error carrying the same code, so sentinels still match
// after WithCause or WithMessage.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.code == e.code
	}
	return false
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{code: e.code, message: e.message, cause: cause}
}

// WithMessage returns a copy of e with a different user-visible message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{code: e.code, message: message, cause: e.cause}
}

// Extensions is picked up by graphql-go when formatting resolver errors.
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.code
	}
	return CodeInternal
}

var (
	ErrNotAuthenticated   = New(CodeNotAuthenticated, "You need to be logged in!")
	ErrInvalidCredentials = New(CodeInvalidCredentials, "Incorrect credentials")
	ErrUnknownIdentity    = New(CodeUnknownIdentity, "No user found with this email address")
	ErrDuplicateIdentity  = New(CodeDuplicateIdentity, "A user with this username or email already exists")
	ErrBadUserInput       = New(CodeBadUserInput, "invalid input")
	ErrPostNotFound       = New(CodePostNotFound, "No matching post found")
	ErrTooManyAttempts    = New(CodeTooManyAttempts, "Too many login attempts, try again later")
	ErrInternal           = New(CodeInternal, "internal server error")
)
