// middleware/auth_middleware.go
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
)

// Capabilities checked by routes
const (
	CapProductsManage        = "products:manage"
	CapOrdersPlace           = "orders:place"
	CapOrdersFulfil          = "orders:fulfil"
	CapSubscriptionsPurchase = "subscriptions:purchase"
	CapSubscriptionsAdmin    = "subscriptions:admin"
	CapPaymentsVerify        = "payments:verify"
	CapAdminDashboard        = "admin:dashboard"
	CapReviewsWrite          = "reviews:write"
	CapReviewsReply          = "reviews:reply"
	CapReviewsModerate       = "reviews:moderate"
	CapMerchantsVerify       = "merchants:verify"
	CapMerchantsDocuments    = "merchants:documents"
	CapPackagesManage        = "packages:manage"
	CapFlashSalesManage      = "flashsales:manage"
	CapSettingsManage        = "settings:manage"
)

// RoleCapabilities is the single table mapping roles to what they may do
var RoleCapabilities = map[string][]string{
	models.RoleCustomer: {
		CapOrdersPlace,
		CapReviewsWrite,
	},
	models.RoleMerchant: {
		CapProductsManage,
		CapOrdersFulfil,
		CapSubscriptionsPurchase,
		CapReviewsReply,
		CapMerchantsDocuments,
	},
	models.RoleAdmin: {
		CapProductsManage,
		CapOrdersFulfil,
		CapSubscriptionsPurchase,
		CapSubscriptionsAdmin,
		CapPaymentsVerify,
		CapAdminDashboard,
		CapReviewsReply,
		CapReviewsModerate,
		CapMerchantsVerify,
		CapPackagesManage,
		CapFlashSalesManage,
		CapSettingsManage,
	},
}

// HasCapability reports whether role grants capability
func HasCapability(role, capability string) bool {
	for _, granted := range RoleCapabilities[role] {
		if granted == capability {
			return true
		}
	}
	return false
}

// RequireCapability checks the authenticated user's role grants capability.
// It must run after the JWT middleware.
func RequireCapability(capability string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.Response{
					Status:  http.StatusUnauthorized,
					Message: "Authentication required",
				})
			}

			if !HasCapability(p.Role, capability) {
				c.Logger().Warnf("Access denied: user %s (%s) lacks %s on %s",
					p.UserID.Hex(), p.Role, capability, c.Request().URL.Path)
				return c.JSON(http.StatusForbidden, models.Response{
					Status:  http.StatusForbidden,
					Message: "You do not have permission to perform this action",
				})
			}
			return next(c)
		}
	}
}
