package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/controllers"
	"github.com/HSouheill/nairobi_verified/middleware"
	"github.com/HSouheill/nairobi_verified/websocket"
)

// Controllers bundles every HTTP handler set the API exposes
type Controllers struct {
	Auth          *controllers.AuthController
	Products      *controllers.ProductController
	Carts         *controllers.CartController
	Orders        *controllers.OrderController
	Reviews       *controllers.ReviewController
	Subscriptions *controllers.SubscriptionController
	Packages      *controllers.PackageController
	Merchants     *controllers.MerchantController
	Admin         *controllers.AdminController
	Notifications *controllers.NotificationController
}

// Deps carries what the route groups need besides the controllers
type Deps struct {
	Auth           *middleware.Authenticator
	Hub            *websocket.Hub
	AllowedOrigins []string
	UploadDir      string
}

// SetupRoutes configures all API routes by calling individual route registration functions
func SetupRoutes(e *echo.Echo, c Controllers, d Deps) {
	RegisterAuthRoutes(e, c, d)
	RegisterCatalogRoutes(e, c, d)
	RegisterOrderRoutes(e, c, d)
	RegisterSubscriptionRoutes(e, c, d)
	RegisterMerchantRoutes(e, c, d)
	RegisterAdminRoutes(e, c, d)
	RegisterNotificationRoutes(e, c, d)
	RegisterFileRoutes(e, d.UploadDir, d.Auth)
}
