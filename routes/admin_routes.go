package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
)

// RegisterAdminRoutes sets up the admin dashboard API
func RegisterAdminRoutes(e *echo.Echo, c Controllers, d Deps) {
	admin := e.Group("/api/admin", d.Auth.Middleware())

	dashboard := admin.Group("/dashboard", middleware.RequireCapability(middleware.CapAdminDashboard))

	// Merchant verification
	dashboard.GET("/merchants", c.Merchants.ListMerchants)
	dashboard.POST("/merchants/:id/verify", c.Merchants.VerifyMerchant, middleware.RequireCapability(middleware.CapMerchantsVerify))
	dashboard.POST("/merchants/:id/reject", c.Merchants.RejectMerchant, middleware.RequireCapability(middleware.CapMerchantsVerify))

	// Products
	dashboard.GET("/products", c.Products.ListAllProducts)
	dashboard.POST("/products/:id/toggle-active", c.Products.ToggleActive)
	dashboard.POST("/products/:id/feature", c.Products.SetFeatured)

	// Users
	dashboard.GET("/users", c.Admin.GetUsers)
	dashboard.POST("/users/:id/toggle-active", c.Admin.ToggleUserStatus)

	// Review moderation
	moderation := dashboard.Group("/reviews", middleware.RequireCapability(middleware.CapReviewsModerate))
	moderation.GET("", c.Reviews.ListReviews)
	moderation.POST("/:id/status", c.Reviews.SetReviewStatus)
	moderation.DELETE("/:id", c.Reviews.DeleteReview)

	// Flash sales
	sales := dashboard.Group("/flash-sales", middleware.RequireCapability(middleware.CapFlashSalesManage))
	sales.GET("", c.Admin.ListFlashSales)
	sales.POST("", c.Admin.CreateFlashSale)
	sales.PUT("/:id", c.Admin.UpdateFlashSale)
	sales.DELETE("/:id", c.Admin.DeleteFlashSale)

	dashboard.GET("/analytics", c.Admin.GetAnalytics)
	dashboard.GET("/settings", c.Admin.GetSettings, middleware.RequireCapability(middleware.CapSettingsManage))
	dashboard.POST("/settings", c.Admin.UpdateSettings, middleware.RequireCapability(middleware.CapSettingsManage))

	// Subscription packages
	packages := admin.Group("/packages", middleware.RequireCapability(middleware.CapPackagesManage))
	packages.GET("", c.Packages.ListAllPackages)
	packages.POST("", c.Packages.CreatePackage)
	packages.PUT("/:id", c.Packages.UpdatePackage)
	packages.DELETE("/:id", c.Packages.DeletePackage)
}
