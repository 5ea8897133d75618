package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for clients.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeUpstream   ErrorType = "upstream"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError is an error that knows how it should be reported over HTTP.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"error"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

func NewBadRequestError(message string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, nil)
}

func NewNotFoundError(message string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, nil)
}

func NewConflictError(message string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message, nil)
}

func NewProcessingError(message string, cause error) *AppError {
	return newAppError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewUpstreamError reports a failure of the remote analysis service.
func NewUpstreamError(message string, cause error) *AppError {
	return newAppError(ErrorTypeUpstream, http.StatusBadGateway, message, cause)
}

func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// AsAppError unwraps err until it finds an *AppError.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if err wraps an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Type == t
	}
	return false
}

// StatusCode returns the HTTP status for err, 500 for anything that is not an AppError.
func StatusCode(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
