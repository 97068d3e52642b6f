package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gemkit/server/internal/shared/errors"
)

// Envelope is the wire format shared by every endpoint: either
// {"success":true,"data":...} or {"success":false,"error":"..."}.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK sends a success envelope with the given payload.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Accepted sends a success envelope with 202 for asynchronous work.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, Envelope{Success: true, Data: data})
}

// Fail sends an error envelope with the given status code.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Error: message})
}

// BadRequest sends a 400 error envelope.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// NotFound sends a 404 error envelope.
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "not found"
	}
	Fail(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error envelope.
func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "internal error"
	}
	Fail(c, http.StatusInternalServerError, message)
}

// FromError maps an error to an envelope using the AppError status when
// present, 500 otherwise. The error's message is always surfaced verbatim.
func FromError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		Fail(c, appErr.StatusCode, appErr.Message)
		return
	}
	Fail(c, apperrors.GetStatusCode(err), err.Error())
}
