package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/middleware"
	"focusflow/backend/internal/service"
)

// AuthHandler serves account registration, login and the current account.
type AuthHandler struct {
	authService *service.AuthService
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsFunc func(ctx context.Context, email, password string) (*service.AuthResult, *apperrors.APIError)

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	withCredentials(c, http.StatusCreated, h.authService.Register)
}

func (h *AuthHandler) Login(c *gin.Context) {
	withCredentials(c, http.StatusOK, h.authService.Login)
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, apiErr := h.authService.Me(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func withCredentials(c *gin.Context, status int, fn credentialsFunc) {
	var body credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		writeInvalidJSON(c)
		return
	}
	result, apiErr := fn(c.Request.Context(), body.Email, body.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(status, result)
}
