package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
)

// RegisterSubscriptionRoutes sets up vendor subscriptions and the M-Pesa webhook
func RegisterSubscriptionRoutes(e *echo.Echo, c Controllers, d Deps) {
	subs := e.Group("/api/subscriptions")

	// Public
	subs.GET("/packages", c.Packages.ListPackages)
	subs.GET("/packages/:id", c.Packages.GetPackage)
	// Daraja authenticates with the callback token, not a JWT
	subs.POST("/mpesa-callback", c.Subscriptions.MpesaCallback)

	vendor := subs.Group("", d.Auth.Middleware(), middleware.RequireCapability(middleware.CapSubscriptionsPurchase))
	vendor.POST("", c.Subscriptions.Subscribe)
	vendor.GET("/current", c.Subscriptions.Current)
	vendor.GET("/payment-status", c.Subscriptions.PaymentStatus)

	// Owners and admins, ownership is checked by the service
	owned := subs.Group("", d.Auth.Middleware())
	owned.GET("/history", c.Subscriptions.History)
	owned.POST("/:id/renew", c.Subscriptions.Renew)
	owned.POST("/:id/cancel", c.Subscriptions.Cancel)
	owned.PUT("/:id/auto-renew", c.Subscriptions.SetAutoRenew)
	owned.POST("/verify-payment/:transactionId", c.Subscriptions.VerifyPayment, middleware.RequireCapability(middleware.CapPaymentsVerify))
	owned.POST("/check-expiring", c.Subscriptions.CheckExpiring, middleware.RequireCapability(middleware.CapSubscriptionsAdmin))
}
