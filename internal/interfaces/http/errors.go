package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/inspector-vouchers/internal/domain/errs"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse carries the error kind and its structured context
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Kind    string                 `json:"kind"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindInvalidTransition:
		return http.StatusConflict
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal errors are logged and their message is
// not sent to the client.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err, "request_id", c.GetString(ctxRequestID))
		msg = "internal error"
	}

	c.JSON(status, ErrorResponse{
		Success: false,
		Error:   msg,
		Kind:    string(kind),
		Details: errs.Details(err),
	})
}

// badRequest reports a malformed request before any service call
func badRequest(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   msg,
		Kind:    string(errs.KindValidation),
		Details: map[string]interface{}{"field": field},
	})
}
