// Package errors defines the error shape returned by services and rendered by
// handlers as {"error":{"code","message","details"}}.
package errors

import "net/http"

const (
	CodeInternal        = "internal_error"
	CodeUnauthorized    = "unauthorized"
	CodeUnavailable     = "unavailable"
	CodeInvalidSettings = "invalid_settings"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`

	cause error
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap exposes the internal cause, if any. The cause is never serialized.
func (e *APIError) Unwrap() error {
	return e.cause
}

func (e *APIError) withCause(cause error) *APIError {
	e.cause = cause
	return e
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func New(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// Internal reports a 500. cause is kept for logging only.
func Internal(message string, cause error) *APIError {
	return New(http.StatusInternalServerError, CodeInternal, orDefault(message, "internal server error")).withCause(cause)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

// InvalidSettings reports a rejected pomodoro configuration.
func InvalidSettings(cause error) *APIError {
	return BadRequest(CodeInvalidSettings, cause.Error()).withCause(cause)
}

func Unauthorized(message string) *APIError {
	return New(http.StatusUnauthorized, CodeUnauthorized, orDefault(message, "unauthorized"))
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	return &APIError{Status: http.StatusConflict, Code: code, Message: message, Details: details}
}

func Unavailable(message string) *APIError {
	return New(http.StatusServiceUnavailable, CodeUnavailable, orDefault(message, "service unavailable"))
}
