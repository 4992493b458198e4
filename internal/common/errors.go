package common

import (
	"errors"
	"net/http"
)

// Error codes rendered in the error envelope.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeInsufficientPoints  = "INSUFFICIENT_POINTS"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeSubmissionInFlight  = "SUBMISSION_IN_PROGRESS"
	CodeNotFound            = "NOT_FOUND"
	CodeSessionRequired     = "SESSION_REQUIRED"
	CodeInternal            = "INTERNAL"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails attaches a details payload and returns the same error.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError builds a 400 VALIDATION_FAILED error.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// WriteError renders err with its AppError status, or a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus > 0 {
		JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}
