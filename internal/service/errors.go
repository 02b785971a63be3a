package service

import (
	"errors"
	"log/slog"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal")
	ErrUnavailable  = errors.New("unavailable")
)

// Error codes returned to API clients.
const (
	CodeBatchTooLarge       = "BATCH_TOO_LARGE"
	CodePersistenceDisabled = "PERSISTENCE_DISABLED"
	CodeInternal            = "INTERNAL"
)

// ServiceError carries the client-facing code and message of a failure; the
// wrapped sentinel decides the HTTP status.
type ServiceError struct {
	Err     error
	Code    string
	Message string
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func NewError(sentinel error, code, message string) *ServiceError {
	return &ServiceError{Err: sentinel, Code: code, Message: message}
}

func BadRequest(code, message string) *ServiceError {
	return NewError(ErrBadRequest, code, message)
}

func Internal(code, message string) *ServiceError {
	return NewError(ErrInternal, code, message)
}

func Unavailable(code, message string) *ServiceError {
	return NewError(ErrUnavailable, code, message)
}

// storageFailed logs a database error with its context and returns the opaque
// error shown to clients. The store is never touched after such a failure.
func storageFailed(msg string, err error, attrs ...any) *ServiceError {
	slog.Error(msg, append(attrs, "error", err)...)
	return Internal(CodeInternal, "internal server error")
}
