package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/middleware"
	"taskplanner/internal/service"
)

// AuthHandler issues the session tokens that planner tabs send as a bearer
// header and as the socket handshake token.
type AuthHandler struct {
	authService *service.AuthService
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authenticator func(ctx context.Context, email, password string) (*service.AuthResult, *apperrors.APIError)

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	h.authenticate(c, http.StatusCreated, h.authService.Register)
}

func (h *AuthHandler) Login(c *gin.Context) {
	h.authenticate(c, http.StatusOK, h.authService.Login)
}

// Me returns the account behind the session, without its password hash.
func (h *AuthHandler) Me(c *gin.Context) {
	user, apiErr := h.authService.CurrentUser(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) authenticate(c *gin.Context, status int, auth authenticator) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	result, apiErr := auth(c.Request.Context(), req.Email, req.Password)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(status, result)
}
