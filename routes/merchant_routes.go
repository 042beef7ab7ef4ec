package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
)

// RegisterMerchantRoutes sets up public profiles and verification documents
func RegisterMerchantRoutes(e *echo.Echo, c Controllers, d Deps) {
	merchants := e.Group("/api/merchants")

	merchants.POST("/documents", c.Merchants.UploadDocument,
		d.Auth.Middleware(), middleware.RequireCapability(middleware.CapMerchantsDocuments))
	merchants.GET("/:id", c.Merchants.GetProfile)
	merchants.GET("/:id/qr", c.Merchants.GetQRCode)
}
