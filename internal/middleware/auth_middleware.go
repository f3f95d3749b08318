package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/service"
)

const UserIDContextKey = "userID"

// Auth requires a session token in the Authorization header.
func Auth(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, false)
}

// SocketAuth also accepts the token as a "token" query parameter, since
// browsers cannot set headers on a WebSocket upgrade.
func SocketAuth(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, true)
}

func authenticate(authService *service.AuthService, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, apiErr := bearerToken(c, allowQuery)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		userID, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, *apperrors.APIError) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); allowQuery && token != "" {
			return token, nil
		}
		return "", apperrors.Unauthorized("missing authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.Unauthorized("invalid authorization format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	return token, nil
}

func UserID(c *gin.Context) string {
	value, ok := c.Get(UserIDContextKey)
	if !ok {
		return ""
	}
	userID, ok := value.(string)
	if !ok {
		return ""
	}
	return userID
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}
