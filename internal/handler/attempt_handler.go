package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prepworks/examgate-backend/internal/middleware"
	"github.com/prepworks/examgate-backend/internal/model"
	"github.com/prepworks/examgate-backend/internal/response"
	"github.com/prepworks/examgate-backend/internal/service"
	"github.com/prepworks/examgate-backend/internal/validator"
)

// AttemptHandler exposes the proctored attempt lifecycle endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// Start godoc
// POST /api/v1/attempts/start
// Creates the attempt ledger row and returns the sanitized paper plus the
// server-issued deadline.
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Start(c.Request.Context(), claims.UserID, req.ExamID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		case errors.Is(err, service.ErrNoCourseAccess):
			response.Fail(c, http.StatusForbidden, response.ErrNoCourseAccess)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// SaveAnswer godoc
// POST /api/v1/attempts/:id/answer
// Upserts one answer; time spent accumulates across saves.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), claims.UserID, attemptID, &req); err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

// Finish godoc
// POST /api/v1/attempts/:id/finish
// Scores the attempt. A second finish gets ATTEMPT_FINISHED, never a re-score.
func (h *AttemptHandler) Finish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.Finish(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetResult godoc
// GET /api/v1/attempts/:id/result
// Returns the review payload for a finished attempt.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// FocusViolation godoc
// POST /api/v1/attempts/:id/focus-violation
// Heartbeat-only observability endpoint; escalation happens client-side.
func (h *AttemptHandler) FocusViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.attemptService.RecordViolation(c.Request.Context(), claims.UserID, attemptID); err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

// failLifecycle maps attempt domain errors onto the response taxonomy.
func (h *AttemptHandler) failLifecycle(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrQuestionNotInExam):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotFound)
	case errors.Is(err, service.ErrAttemptFinished):
		response.Fail(c, http.StatusBadRequest, response.ErrAttemptFinished)
	case errors.Is(err, service.ErrAttemptNotScored):
		response.Fail(c, http.StatusBadRequest, response.ErrAttemptNotScored)
	case errors.Is(err, service.ErrTimeExpired):
		response.Fail(c, http.StatusBadRequest, response.ErrTimeExpired)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
