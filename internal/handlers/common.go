package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/edupath/attempt-engine/internal/errors"
	"github.com/edupath/attempt-engine/internal/services"
	"github.com/edupath/attempt-engine/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER =====

// BaseHandler provides common logging for all handlers.
type BaseHandler struct {
	logger utils.Logger
}

// NewBaseHandler creates a new base handler.
func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogError logs error details with request context.
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	fields = append(fields, additionalFields...)
	h.logger.LogError(err, message, fields...)
}

// respondError maps the engine's failure taxonomy onto HTTP statuses:
// unknown sessions are 404, abandoned sessions 422, double submits
// 409, retryable submit failures 502, validation failures 400.
func (h *BaseHandler) respondError(c *gin.Context, err error) {
	var ve apperrors.ValidationErrors
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "validation failed",
			Details: ve,
			Code:    "VALIDATION_FAILED",
		})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
			Code:    "SESSION_NOT_FOUND",
		})
	case errors.Is(err, services.ErrSessionSubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
			Code:    "ALREADY_SUBMITTED",
		})
	case services.IsRetryableSubmit(err):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "submit failed, please retry",
			Code:    "SUBMIT_RETRYABLE",
		})
	case services.IsFatalSession(err):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Code:    "SESSION_ABANDONED",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "internal server error",
			Code:    "INTERNAL",
		})
	}
}

// HealthCheck responds to liveness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
