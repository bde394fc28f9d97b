package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edupath/attempt-engine/internal/services"
	"github.com/edupath/attempt-engine/internal/utils"
)

// AttemptHandler exposes the attempt session engine over REST.
type AttemptHandler struct {
	BaseHandler
	sessions  services.SessionService
	validator *utils.Validator
}

// NewAttemptHandler creates the attempt handler.
func NewAttemptHandler(sessions services.SessionService, validator *utils.Validator, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler: NewBaseHandler(logger),
		sessions:    sessions,
		validator:   validator,
	}
}

// StartAttemptRequest opens a session for a quiz.
type StartAttemptRequest struct {
	QuizID   int64 `json:"quiz_id" validate:"required,gt=0"`
	ForceNew bool  `json:"force_new"`
}

// Start begins (or transparently resumes) an attempt for a quiz.
// POST /api/v1/attempts/start
func (h *AttemptHandler) Start(c *gin.Context) {
	var req StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body", Code: "BAD_REQUEST"})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.respondError(c, err)
		return
	}

	state, err := h.sessions.Start(c.Request.Context(), req.QuizID, req.ForceNew)
	if err != nil {
		h.LogError(c, err, "Failed to start attempt", "quiz_id", req.QuizID)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, state)
}

// Resume reopens an interrupted attempt by id.
// POST /api/v1/attempts/:id/resume
func (h *AttemptHandler) Resume(c *gin.Context) {
	attemptID, ok := h.attemptID(c)
	if !ok {
		return
	}

	state, err := h.sessions.Resume(c.Request.Context(), attemptID)
	if err != nil {
		h.LogError(c, err, "Failed to resume attempt", "attempt_id", attemptID)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// State returns the current session snapshot.
// GET /api/v1/attempts/:id
func (h *AttemptHandler) State(c *gin.Context) {
	attemptID, ok := h.attemptID(c)
	if !ok {
		return
	}

	state, err := h.sessions.State(c.Request.Context(), attemptID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Capture applies one answer interaction and returns the new snapshot.
// POST /api/v1/attempts/:id/answer
func (h *AttemptHandler) Capture(c *gin.Context) {
	attemptID, ok := h.attemptID(c)
	if !ok {
		return
	}

	var req services.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body", Code: "BAD_REQUEST"})
		return
	}

	state, err := h.sessions.Capture(c.Request.Context(), attemptID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Navigate moves between questions; past the last question it either
// submits (all answered) or asks for confirmation.
// POST /api/v1/attempts/:id/navigate
func (h *AttemptHandler) Navigate(c *gin.Context) {
	attemptID, ok := h.attemptID(c)
	if !ok {
		return
	}

	var req services.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body", Code: "BAD_REQUEST"})
		return
	}

	outcome, err := h.sessions.Navigate(c.Request.Context(), attemptID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Submit finalizes the attempt. Retryable on upstream failure.
// POST /api/v1/attempts/:id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	attemptID, ok := h.attemptID(c)
	if !ok {
		return
	}

	result, err := h.sessions.Submit(c.Request.Context(), attemptID)
	if err != nil {
		h.LogError(c, err, "Failed to submit attempt", "attempt_id", attemptID)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Close tears the session down locally without finalizing upstream.
// DELETE /api/v1/attempts/:id
func (h *AttemptHandler) Close(c *gin.Context) {
	attemptID, ok := h.attemptID(c)
	if !ok {
		return
	}

	if err := h.sessions.Close(attemptID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "session closed"})
}

func (h *AttemptHandler) attemptID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid attempt id", Code: "BAD_REQUEST"})
		return 0, false
	}
	return id, true
}
