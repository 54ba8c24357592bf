// Package apperr defines the typed errors returned by use-cases. The HTTP
// boundary maps each Kind to a status code and exposes only Code, Message and
// Fields to clients.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindInvalidToken   Kind = "invalid_token"
	KindSessionExpired Kind = "session_expired"
	KindSecurityBreach Kind = "security_breach"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSecurityBreach      = "SECURITY_BREACH"
	CodeRefreshTokenMissing = "REFRESH_TOKEN_REQUIRED"
	CodeTokenRequired       = "TOKEN_REQUIRED"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized, KindInvalidToken, KindSessionExpired, KindSecurityBreach:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Fields: fields}
}

func ValidationField(field, message string) *Error {
	return Validation(message, map[string]string{field: message})
}

// Missing reports a required input absent altogether, under its own code.
func Missing(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: entity + " not found"}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: message}
}

func Unauthorized(code, message string) *Error {
	if code == "" {
		code = CodeUnauthorized
	}
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: message}
}

// InvalidToken never says why verification failed.
func InvalidToken(cause error) *Error {
	return &Error{Kind: KindInvalidToken, Code: CodeInvalidToken, Message: "invalid or expired token", Err: cause}
}

func SessionExpired() *Error {
	return &Error{Kind: KindSessionExpired, Code: CodeSessionExpired, Message: "session is no longer active"}
}

func SecurityBreach(message string) *Error {
	return &Error{Kind: KindSecurityBreach, Code: CodeSecurityBreach, Message: message}
}

// Wrap attaches an internal cause to e without changing what clients see.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
