package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskplanner/internal/middleware"
	"taskplanner/internal/service"
)

type APIKeyHandler struct {
	apiKeyService *service.APIKeyService
}

func NewAPIKeyHandler(apiKeyService *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService: apiKeyService}
}

func (h *APIKeyHandler) List(c *gin.Context) {
	keys, apiErr := h.apiKeyService.List(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"apiKeys": keys})
}

// Create answers with the plaintext key. It cannot be retrieved again.
func (h *APIKeyHandler) Create(c *gin.Context) {
	var req service.CreateAPIKeyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	created, apiErr := h.apiKeyService.Create(c.Request.Context(), middleware.UserID(c), req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"apiKey": created})
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	if apiErr := h.apiKeyService.Revoke(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *APIKeyHandler) UpdatePermissions(c *gin.Context) {
	var req service.PermissionsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	key, apiErr := h.apiKeyService.UpdatePermissions(c.Request.Context(), middleware.UserID(c), c.Param("id"), req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"apiKey": key})
}
