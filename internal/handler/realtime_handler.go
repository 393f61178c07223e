package handler

import (
	"chatwave-be/internal/pkg/logger"
	"chatwave-be/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RealtimeHandler upgrades HTTP requests into coordinator sessions. The
// upgrade itself is unauthenticated; the first event on the socket must be
// an authenticate frame or the connection stays deaf.
type RealtimeHandler struct {
	hub    *realtime.Hub
	logger logger.ILogger
}

func NewRealtimeHandler(hub *realtime.Hub, log logger.ILogger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, logger: log}
}

func (h *RealtimeHandler) RegisterRoutes(api fiber.Router) {
	api.Get("/ws", h.ServeWs)
}

func (h *RealtimeHandler) ServeWs(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.hub.ServeWs(conn)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
