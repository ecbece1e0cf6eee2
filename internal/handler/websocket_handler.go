package handler

import (
	"sppg/internal/middleware"
	"sppg/internal/websocket"

	"github.com/gin-gonic/gin"
)

// EventsHandler upgrades dashboards to the live workflow event stream.
type EventsHandler struct {
	hub   *websocket.Hub
	guard *middleware.Guard
}

func NewEventsHandler(hub *websocket.Hub, guard *middleware.Guard) *EventsHandler {
	return &EventsHandler{hub: hub, guard: guard}
}

func (h *EventsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", h.guard.RequireAuth(), h.guard.RequirePermission("dashboard.read"), h.Serve)
}

func (h *EventsHandler) Serve(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	h.hub.ServeWs(c, userID)
}
