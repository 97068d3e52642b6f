package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types.
var (
	ErrConfig          = errors.New("missing or invalid configuration")
	ErrValidation      = errors.New("validation failed")
	ErrFetch           = errors.New("fetch failed")
	ErrUpload          = errors.New("upload failed")
	ErrDelete          = errors.New("delete failed")
	ErrGenerationStop  = errors.New("generation stopped")
	ErrNoImageReturned = errors.New("no image returned")
	ErrNotFound        = errors.New("resource not found")
	ErrInternal        = errors.New("internal error")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors.

// Config creates a configuration error. These are fatal at construction of
// the affected client, never at request time.
func Config(message string) *AppError {
	return &AppError{
		Code:       "CONFIG_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        ErrConfig,
	}
}

// Validation creates a validation error for a malformed request.
func Validation(message string) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrValidation,
	}
}

// Fetch creates an error for a failed remote image fetch.
func Fetch(message string, err error) *AppError {
	return &AppError{
		Code:       "FETCH_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        wrap(ErrFetch, err),
	}
}

// Upload creates an error for a failed blob store upload.
func Upload(message string, err error) *AppError {
	return &AppError{
		Code:       "UPLOAD_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        wrap(ErrUpload, err),
	}
}

// Delete creates an error for a failed blob store delete.
func Delete(message string, err error) *AppError {
	return &AppError{
		Code:       "DELETE_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        wrap(ErrDelete, err),
	}
}

// GenerationStopped creates an error for a generation call that finished
// with an abnormal finish reason and produced no image.
func GenerationStopped(reason string) *AppError {
	return &AppError{
		Code:       "GENERATION_STOPPED",
		Message:    fmt.Sprintf("image generation stopped: %s", reason),
		StatusCode: http.StatusInternalServerError,
		Err:        ErrGenerationStop,
	}
}

// NoImageReturned creates an error for a generation response without any
// inline image part.
func NoImageReturned() *AppError {
	return &AppError{
		Code:       "NO_IMAGE_RETURNED",
		Message:    "the model returned no image",
		StatusCode: http.StatusInternalServerError,
		Err:        ErrNoImageReturned,
	}
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        wrap(ErrInternal, err),
	}
}

// wrap joins a sentinel with an underlying cause so both survive errors.Is.
func wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
