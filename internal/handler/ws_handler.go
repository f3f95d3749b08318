package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"taskplanner/internal/middleware"
	"taskplanner/internal/realtime"
)

type SocketHandler struct {
	hub *realtime.Hub
}

func NewSocketHandler(hub *realtime.Hub) *SocketHandler {
	return &SocketHandler{hub: hub}
}

// Connect upgrades an authenticated request. On failure the upgrader has
// already answered the client.
func (h *SocketHandler) Connect(c *gin.Context) {
	if err := h.hub.Serve(c.Writer, c.Request, middleware.UserID(c)); err != nil {
		log.Printf("realtime: %v", err)
	}
}
