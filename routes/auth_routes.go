package routes

import (
	"github.com/labstack/echo/v4"
)

// RegisterAuthRoutes sets up all authentication routes
func RegisterAuthRoutes(e *echo.Echo, c Controllers, d Deps) {
	auth := e.Group("/api/auth")

	auth.POST("/register", c.Auth.Register)
	auth.POST("/login", c.Auth.Login)

	protected := auth.Group("", d.Auth.Middleware())
	protected.POST("/logout", c.Auth.Logout)
	protected.GET("/me", c.Auth.Me)
	protected.PUT("/fcm-token", c.Auth.UpdateFCMToken)
}
