package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/services"
)

type AdminController struct {
	admin *services.AdminService
}

func NewAdminController(admin *services.AdminService) *AdminController {
	return &AdminController{admin: admin}
}

// GetAnalytics returns the dashboard summary
func (ac *AdminController) GetAnalytics(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	analytics, err := ac.admin.Analytics(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Analytics retrieved successfully", analytics)
}

func (ac *AdminController) GetUsers(c echo.Context) error {
	filter := repositories.UserFilter{
		Role:               c.QueryParam("role"),
		VerificationStatus: c.QueryParam("verificationStatus"),
		Search:             c.QueryParam("search"),
		Page:               queryPage(c),
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	users, total, err := ac.admin.ListUsers(ctx, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Users retrieved successfully", users, total, filter.Page)
}

// ToggleUserStatus activates or deactivates an account. Admins cannot
// deactivate themselves.
func (ac *AdminController) ToggleUserStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	user, err := ac.admin.ToggleUserActive(ctx, p, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "User status updated", user)
}

func (ac *AdminController) GetSettings(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	settings, err := ac.admin.GetSettings(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Settings retrieved successfully", settings)
}

func (ac *AdminController) UpdateSettings(c echo.Context) error {
	var req models.SettingsRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	settings, err := ac.admin.SaveSettings(ctx, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Settings updated successfully", settings)
}

func (ac *AdminController) ListFlashSales(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sales, err := ac.admin.ListFlashSales(ctx, false)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Flash sales retrieved successfully", sales)
}

// ActiveFlashSales is public and lists sales running right now
func (ac *AdminController) ActiveFlashSales(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sales, err := ac.admin.ListFlashSales(ctx, true)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Flash sales retrieved successfully", sales)
}

func (ac *AdminController) CreateFlashSale(c echo.Context) error {
	var req models.FlashSaleRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sale, err := ac.admin.CreateFlashSale(ctx, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "Flash sale created successfully", sale)
}

func (ac *AdminController) UpdateFlashSale(c echo.Context) error {
	var req models.FlashSaleRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sale, err := ac.admin.UpdateFlashSale(ctx, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Flash sale updated successfully", sale)
}

func (ac *AdminController) DeleteFlashSale(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := ac.admin.DeleteFlashSale(ctx, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Flash sale deleted successfully", nil)
}
