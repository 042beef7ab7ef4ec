package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/websocket"
)

// RegisterNotificationRoutes sets up stored notifications and the live socket
func RegisterNotificationRoutes(e *echo.Echo, c Controllers, d Deps) {
	notifications := e.Group("/api/notifications", d.Auth.Middleware())
	notifications.GET("", c.Notifications.GetNotifications)
	notifications.PATCH("/:id/read", c.Notifications.MarkAsRead)

	// The handshake authenticates itself since browsers cannot send headers
	e.GET("/api/ws", websocket.Handler(d.Hub, d.Auth, d.AllowedOrigins))
}
