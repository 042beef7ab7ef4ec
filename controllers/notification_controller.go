package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/services"
)

type NotificationController struct {
	auth *services.AuthService
}

func NewNotificationController(auth *services.AuthService) *NotificationController {
	return &NotificationController{auth: auth}
}

func (nc *NotificationController) GetNotifications(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	notifications, err := nc.auth.Notifications(ctx, p.UserID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Notifications retrieved successfully", notifications)
}

func (nc *NotificationController) MarkAsRead(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := nc.auth.MarkNotificationRead(ctx, p.UserID, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Notification marked as read", nil)
}
