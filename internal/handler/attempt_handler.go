package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/middleware"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/klasio/klasio-backend/internal/response"
	"github.com/klasio/klasio-backend/internal/service"
	"github.com/klasio/klasio-backend/internal/validator"
)

// AttemptHandler exposes the attempt state machine over HTTP.
type AttemptHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, examService *service.ExamService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		examService:    examService,
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts or resumes the student's attempt and returns the exam paper alongside
// it. Safe to retry: a reload after a crash lands back on the same attempt.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	start, err := h.attemptService.Start(c.Request.Context(), claims.UserID, examID, req.SessionID)
	if err != nil {
		h.failFromError(c, err)
		return
	}

	paper, err := h.examService.StudentPaper(c.Request.Context(), examID)
	if err != nil {
		h.failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam":              paper,
		"attempt":           start.Attempt,
		"answers":           start.Answers,
		"remaining_seconds": start.RemainingSeconds,
	})
}

// SaveAnswer godoc
// POST /api/v1/student/attempts/:attempt_id/answers
// Upserts the selected choice for one question, last write wins.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), claims.UserID, attemptID, req.QuestionID, req.ChoiceID); err != nil {
		h.failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

// RecordTabSwitch godoc
// POST /api/v1/student/attempts/:attempt_id/tab-switches
// Reports one focus-loss incident. The response tells the client whether the
// attempt was flagged and how many switches remain.
func (h *AttemptHandler) RecordTabSwitch(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.attemptService.RecordTabSwitch(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Finalizes the attempt and returns the grade. The countdown-expiry submit
// from the client hits this same endpoint.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		h.failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
// Returns the grade snapshot persisted when the attempt was finalized.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			response.Fail(c, http.StatusGone, response.ErrResultNotReady)
			return
		}
		h.failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// failFromError maps service errors onto envelope codes.
func (h *AttemptHandler) failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrInvalidState):
		response.Fail(c, http.StatusGone, response.ErrInvalidState)
	case errors.Is(err, service.ErrAlreadyCompleted):
		response.Fail(c, http.StatusGone, response.ErrAlreadyCompleted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
