// Package apperr carries errors across the HTTP boundary with a stable code.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of application error.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeBadRequest    Code = "bad_request"
	CodeConflict      Code = "conflict"
	CodeSnoozeLimit   Code = "snooze_limit_exceeded"
	CodeInternal      Code = "internal"
	CodeUnprocessable Code = "unprocessable"
)

// AppError is an error with a code and a user-facing message.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error code to an HTTP status.
func (e *AppError) Status() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeSnoozeLimit, CodeUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource), Err: err}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, Err: err}
}

func Conflict(message string, err error) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Err: err}
}

func SnoozeLimit(err error) *AppError {
	return &AppError{Code: CodeSnoozeLimit, Message: "snooze limit exceeded", Err: err}
}

func Unprocessable(message string, err error) *AppError {
	return &AppError{Code: CodeUnprocessable, Message: message, Err: err}
}

func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal server error", Err: err}
}

// Write renders err as a JSON error body. Errors that are not an
// *AppError are reported as internal errors.
func Write(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status())
	json.NewEncoder(w).Encode(appErr)
}
