package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubscriptionHandler is the admin override surface under /admin/subscriptions.
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	logger        zerolog.Logger
}

func NewSubscriptionHandler(subscriptions *service.SubscriptionService, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// Handles GET /admin/users/:id/subscriptions
func (h *SubscriptionHandler) ListByUser(c *gin.Context) {
	userID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	subs, err := h.subscriptions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptions.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, sub)
}

// Handles POST /admin/subscriptions
func (h *SubscriptionHandler) Grant(c *gin.Context) {
	var req struct {
		UserID          uuid.UUID   `json:"user_id" binding:"required"`
		Plan            models.Plan `json:"plan" binding:"required,plan"`
		StartAt         time.Time   `json:"start_at" binding:"required"`
		EndAt           time.Time   `json:"end_at" binding:"required"`
		AutoDowngradeTo models.Plan `json:"auto_downgrade_to" binding:"omitempty,plan"`
		Reason          string      `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptions.Grant(c.Request.Context(), actor(c).ID, service.GrantInput{
		UserID:          req.UserID,
		Plan:            req.Plan,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		AutoDowngradeTo: req.AutoDowngradeTo,
	}, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusCreated, sub)
}

// Handles PATCH /admin/subscriptions/:id
func (h *SubscriptionHandler) Override(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Plan            *models.Plan               `json:"plan" binding:"omitempty,plan"`
		Status          *models.SubscriptionStatus `json:"status" binding:"omitempty,sub_status"`
		StartAt         *time.Time                 `json:"start_at"`
		EndAt           *time.Time                 `json:"end_at"`
		AutoDowngradeTo *models.Plan               `json:"auto_downgrade_to" binding:"omitempty,plan"`
		Reason          string                     `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptions.Override(c.Request.Context(), actor(c).ID, id, service.SubscriptionPatch{
		Plan:            req.Plan,
		Status:          req.Status,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		AutoDowngradeTo: req.AutoDowngradeTo,
	}, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, sub)
}
