// Package reminder exposes the scheduler operations over HTTP. The
// handlers do binding and delegation only; all state-machine semantics
// live in the scheduler service.
package reminder

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/trainer-api/pkg/errors"

	"github.com/jwalitptl/trainer-api/internal/handler"
	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/service/scheduler"
)

type Handler struct {
	service scheduler.Service
}

func NewHandler(service scheduler.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reminders := r.Group("/reminders")
	reminders.POST("", h.Create)
	reminders.POST("/pause", h.Pause)
	reminders.POST("/resume", h.Resume)
	reminders.POST("/reset", h.Reset)
}

type createRequest struct {
	UserID      uuid.UUID `json:"user_id" binding:"required"`
	Day         int       `json:"day" binding:"min=0"`
	StepIndex   int       `json:"step_index" binding:"min=0"`
	DurationSec int64     `json:"duration_sec" binding:"required,gt=0"`
	StepTitle   string    `json:"step_title"`
	URL         string    `json:"url"`
}

type keyRequest struct {
	UserID    uuid.UUID `json:"user_id" binding:"required"`
	Day       int       `json:"day" binding:"min=0"`
	StepIndex int       `json:"step_index" binding:"min=0"`
}

type resumeRequest struct {
	UserID       uuid.UUID `json:"user_id" binding:"required"`
	Day          int       `json:"day" binding:"min=0"`
	StepIndex    int       `json:"step_index" binding:"min=0"`
	RemainingSec int64     `json:"remaining_sec"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	err := h.service.Create(c.Request.Context(), req.UserID, req.Day, req.StepIndex, req.DurationSec, &model.ReminderPayload{
		StepTitle: req.StepTitle,
		URL:       req.URL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(nil))
}

func (h *Handler) Pause(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Pause(c.Request.Context(), req.UserID, req.Day, req.StepIndex); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) Resume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Resume(c.Request.Context(), req.UserID, req.Day, req.StepIndex, req.RemainingSec); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) Reset(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Reset(c.Request.Context(), req.UserID, req.Day, req.StepIndex); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrBadRequest {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(appErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
}
