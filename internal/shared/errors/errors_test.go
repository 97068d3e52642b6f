package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test error message",
		}
		assert.Equal(t, "test error message", err.Error())
	})

	t.Run("Error includes wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test error message",
			Err:     wrapped,
		}
		assert.Contains(t, err.Error(), "test error message")
		assert.Contains(t, err.Error(), "wrapped error")
	})

	t.Run("Unwrap returns wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test message",
			Err:     wrapped,
		}
		assert.Equal(t, wrapped, err.Unwrap())
	})
}

func TestNewAppError(t *testing.T) {
	wrapped := errors.New("original")
	err := NewAppError("CUSTOM_ERROR", "custom message", 418, wrapped)

	assert.Equal(t, "CUSTOM_ERROR", err.Code)
	assert.Equal(t, "custom message", err.Message)
	assert.Equal(t, 418, err.StatusCode)
	assert.Equal(t, wrapped, err.Err)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"Config", Config("missing key"), "CONFIG_ERROR", http.StatusInternalServerError, ErrConfig},
		{"Validation", Validation("bad input"), "VALIDATION_ERROR", http.StatusBadRequest, ErrValidation},
		{"Fetch", Fetch("fetch ref", nil), "FETCH_ERROR", http.StatusInternalServerError, ErrFetch},
		{"Upload", Upload("put object", nil), "UPLOAD_ERROR", http.StatusInternalServerError, ErrUpload},
		{"Delete", Delete("delete object", nil), "DELETE_ERROR", http.StatusInternalServerError, ErrDelete},
		{"GenerationStopped", GenerationStopped("SAFETY"), "GENERATION_STOPPED", http.StatusInternalServerError, ErrGenerationStop},
		{"NoImageReturned", NoImageReturned(), "NO_IMAGE_RETURNED", http.StatusInternalServerError, ErrNoImageReturned},
		{"NotFound", NotFound("run"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"Internal", Internal("boom", nil), "INTERNAL_ERROR", http.StatusInternalServerError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestGenerationStoppedIncludesReason(t *testing.T) {
	err := GenerationStopped("SAFETY")
	assert.Contains(t, err.Message, "SAFETY")
}

func TestWrapPreservesBothErrors(t *testing.T) {
	cause := errors.New("network reset")
	err := Upload("put object", cause)

	assert.True(t, errors.Is(err, ErrUpload))
	assert.True(t, errors.Is(err, cause))
}

func TestGetStatusCode(t *testing.T) {
	t.Run("app error status wins", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, GetStatusCode(Validation("bad")))
		assert.Equal(t, http.StatusNotFound, GetStatusCode(NotFound("run")))
	})

	t.Run("bare sentinels map to status", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, GetStatusCode(ErrValidation))
		assert.Equal(t, http.StatusNotFound, GetStatusCode(ErrNotFound))
	})

	t.Run("unknown errors are internal", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, GetStatusCode(errors.New("mystery")))
	})
}
