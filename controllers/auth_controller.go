package controllers

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/security"
	"github.com/HSouheill/nairobi_verified/services"
)

// AuthController contains authentication logic
type AuthController struct {
	auth          *services.AuthService
	authenticator *middleware.Authenticator
	logins        security.LoginGuard
	jwtSecret     string
	secureCookies bool
}

// NewAuthController creates a new auth controller. A nil guard keeps
// failed login counters in memory.
func NewAuthController(auth *services.AuthService, authenticator *middleware.Authenticator, logins security.LoginGuard, jwtSecret string, secureCookies bool) *AuthController {
	if logins == nil {
		logins = security.NewMemoryLoginGuard()
	}
	return &AuthController{
		auth:          auth,
		authenticator: authenticator,
		logins:        logins,
		jwtSecret:     jwtSecret,
		secureCookies: secureCookies,
	}
}

// Register creates a customer or merchant account
func (ac *AuthController) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	user, err := ac.auth.Register(ctx, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "Registration successful", user)
}

// Login checks credentials, issues a JWT and sets the auth cookie
func (ac *AuthController) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	locked, err := ac.logins.Locked(ctx, email)
	if err != nil {
		log.Printf("Login guard unavailable for %s: %v", c.RealIP(), err)
	}
	if locked {
		return respond(c, http.StatusTooManyRequests, "Too many failed login attempts, try again later", nil)
	}

	user, err := ac.auth.Authenticate(ctx, email, req.Password)
	if err != nil {
		if appErr, ok := services.AsAppError(err); ok && appErr.Code == http.StatusUnauthorized {
			if err := ac.logins.Fail(ctx, email); err != nil {
				log.Printf("Failed to record login failure: %v", err)
			}
		}
		return respondError(c, err)
	}
	if err := ac.logins.Reset(ctx, email); err != nil {
		log.Printf("Failed to reset login failures: %v", err)
	}

	token, ttl, err := middleware.GenerateJWT(ac.jwtSecret, user, req.RememberMe)
	if err != nil {
		return respondError(c, services.ErrInternal("Failed to issue token", err))
	}
	middleware.SetTokenCookie(c, token, ttl, ac.secureCookies)

	return respond(c, http.StatusOK, "Login successful", models.LoginResponse{
		Token:     token,
		User:      user,
		ExpiresIn: int64(ttl.Seconds()),
	})
}

// Logout blacklists the current token and clears the cookie
func (ac *AuthController) Logout(c echo.Context) error {
	if err := ac.authenticator.Revoke(c); err != nil {
		return respondError(c, services.ErrInternal("Failed to log out", err))
	}
	middleware.ClearTokenCookie(c, ac.secureCookies)
	return respond(c, http.StatusOK, "Logged out successfully", nil)
}

// Me returns the authenticated user
func (ac *AuthController) Me(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	user, err := ac.auth.ActiveUser(ctx, p.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "User retrieved successfully", user)
}

// UpdateFCMToken stores the device token used for push notifications
func (ac *AuthController) UpdateFCMToken(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.FCMTokenRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := ac.auth.UpdateFCMToken(ctx, p.UserID, req.Token); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "FCM token updated", nil)
}
