package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/edupath/attempt-engine/internal/services"
	"github.com/edupath/attempt-engine/internal/utils"
)

// HandlerManager wires the handlers onto the router.
type HandlerManager struct {
	attemptHandler *AttemptHandler
}

func NewHandlerManager(
	sessions services.SessionService,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(sessions, validator, logger),
	}
}

// SetupRoutes sets up all API routes.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	{
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.Start)
			attempts.POST("/:id/resume", hm.attemptHandler.Resume)
			attempts.GET("/:id", hm.attemptHandler.State)
			attempts.POST("/:id/answer", hm.attemptHandler.Capture)
			attempts.POST("/:id/navigate", hm.attemptHandler.Navigate)
			attempts.POST("/:id/submit", hm.attemptHandler.Submit)
			attempts.DELETE("/:id", hm.attemptHandler.Close)
		}
	}
}
