package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UserHandler serves account administration under /admin/users.
type UserHandler struct {
	users  *service.UserService
	audit  *service.AuditTrail
	now    func() time.Time
	logger zerolog.Logger
}

func NewUserHandler(users *service.UserService, audit *service.AuditTrail, now func() time.Time, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, audit: audit, now: now, logger: logger}
}

func (h *UserHandler) List(c *gin.Context) {
	limit, offset := pagination(c, 50, 500)

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// Handles POST /admin/users/:id/ban. Without ban_until or duration_hours the
// ban is permanent.
func (h *UserHandler) Ban(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		BanUntil      *time.Time `json:"ban_until"`
		DurationHours *int       `json:"duration_hours" binding:"omitempty,gt=0"`
		BanReason     string     `json:"ban_reason" binding:"max=500"`
		Reason        string     `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.BanUntil != nil && req.DurationHours != nil {
		response.Error(c, http.StatusBadRequest, "Use either ban_until or duration_hours, not both")
		return
	}

	until := req.BanUntil
	if req.DurationHours != nil {
		t := h.now().Add(time.Duration(*req.DurationHours) * time.Hour)
		until = &t
	}

	user, err := h.users.Ban(c.Request.Context(), actor(c).ID, id, service.BanInput{
		Until:     until,
		BanReason: req.BanReason,
	}, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

func (h *UserHandler) Unblock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Unblock(c.Request.Context(), actor(c).ID, id, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

func (h *UserHandler) SetReferralBonus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		ReferralBonusDaily *int   `json:"referral_bonus_daily" binding:"required,gte=0"`
		Reason             string `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.SetReferralBonus(c.Request.Context(), actor(c).ID, id, *req.ReferralBonusDaily, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// Handles GET /admin/audit?target_type=&target_id=
func (h *UserHandler) AuditTrail(c *gin.Context) {
	targetType := c.Query("target_type")
	targetID := c.Query("target_id")
	if targetType == "" || targetID == "" {
		response.Error(c, http.StatusBadRequest, "target_type and target_id are required")
		return
	}

	entries, err := h.audit.ListByTarget(c.Request.Context(), targetType, targetID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, entries)
}
