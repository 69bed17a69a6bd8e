package handler

import (
	"net/http"

	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type AuthHandler struct {
	auth   *service.AuthService
	logger zerolog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
		Name     string `json:"name" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	reg, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":    reg.User,
		"api_key": reg.APIKey,
		"key":     reg.Secret,
		"message": "Save this key - it won't be shown again",
	})
}

// Handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Handles GET /me
func (h *AuthHandler) Me(c *gin.Context) {
	response.Success(c, http.StatusOK, actor(c))
}
