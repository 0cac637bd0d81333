// Package subscription registers browser push endpoints and serves the
// public VAPID key clients need to subscribe.
package subscription

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/trainer-api/internal/handler"
	"github.com/jwalitptl/trainer-api/internal/model"
	"github.com/jwalitptl/trainer-api/internal/repository"
)

type Handler struct {
	repo           repository.SubscriptionRepository
	vapidPublicKey string
}

func NewHandler(repo repository.SubscriptionRepository, vapidPublicKey string) *Handler {
	return &Handler{
		repo:           repo,
		vapidPublicKey: vapidPublicKey,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	push := r.Group("/push")
	push.POST("/subscriptions", h.Save)
	push.GET("/vapid", h.VAPIDKey)
}

type saveRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Endpoint string    `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

func (h *Handler) Save(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	sub := &model.PushSubscription{
		UserID:   req.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.repo.Save(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{"id": sub.ID}))
}

func (h *Handler) VAPIDKey(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"public_key": h.vapidPublicKey,
	}))
}
