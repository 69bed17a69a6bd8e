package handler

import (
	"net/http"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type APIKeyHandler struct {
	keys    *service.APIKeyService
	users   *service.UserService
	billing config.BillingConfig
	logger  zerolog.Logger
}

func NewAPIKeyHandler(keys *service.APIKeyService, users *service.UserService, billing config.BillingConfig, logger zerolog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, users: users, billing: billing, logger: logger}
}

// Handles GET /me/keys
func (h *APIKeyHandler) ListOwn(c *gin.Context) {
	keys, err := h.keys.ListByUser(c.Request.Context(), actor(c).ID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, keys)
}

// Handles POST /me/keys. The new key gets the plan's daily quota.
func (h *APIKeyHandler) CreateOwn(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,max=64"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user := actor(c)
	secret, apiKey, err := h.keys.Create(c.Request.Context(), user.ID, req.Name, h.billing.DailyLimitFor(user.Plan))
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"key":     secret,
		"api_key": apiKey,
		"message": "Save this key - it won't be shown again",
	})
}

// Handles DELETE /me/keys/:id. Keys are revoked, never deleted.
func (h *APIKeyHandler) RevokeOwn(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.keys.RevokeOwn(c.Request.Context(), actor(c).ID, id); err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "API key revoked"})
}

// Handles GET /admin/keys, optionally filtered by ?user_id=
func (h *APIKeyHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		keys []models.APIKey
		err  error
	)
	if raw := c.Query("user_id"); raw != "" {
		userID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			response.Error(c, http.StatusBadRequest, "Invalid user_id")
			return
		}
		keys, err = h.keys.ListByUser(ctx, userID)
	} else {
		keys, err = h.keys.List(ctx)
	}
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, keys)
}

// Handles GET /admin/keys/:id
func (h *APIKeyHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	apiKey, err := h.keys.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, apiKey)
}

// Handles POST /admin/keys
func (h *APIKeyHandler) Create(c *gin.Context) {
	var req struct {
		UserID     uuid.UUID `json:"user_id" binding:"required"`
		Name       string    `json:"name" binding:"required,max=64"`
		DailyLimit *int      `json:"daily_limit" binding:"omitempty,gte=0"`
		Reason     string    `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	owner, err := h.users.Get(ctx, req.UserID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	limit := h.billing.DailyLimitFor(owner.Plan)
	if req.DailyLimit != nil {
		limit = *req.DailyLimit
	}

	secret, apiKey, err := h.keys.AdminCreate(ctx, actor(c).ID, owner.ID, req.Name, limit, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"key":     secret,
		"api_key": apiKey,
		"message": "Save this key - it won't be shown again",
	})
}

// Handles PATCH /admin/keys/:id
func (h *APIKeyHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status     *models.KeyStatus `json:"status" binding:"omitempty,key_status"`
		DailyLimit *int              `json:"daily_limit" binding:"omitempty,gte=0"`
		Reason     string            `json:"reason" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	apiKey, err := h.keys.AdminUpdate(c.Request.Context(), actor(c).ID, id, req.Status, req.DailyLimit, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, apiKey)
}
