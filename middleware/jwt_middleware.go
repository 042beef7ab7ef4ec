// middleware/jwt_middleware.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/services"
)

// Token lifetimes
const (
	TokenTTL           = 24 * time.Hour
	RememberMeTokenTTL = 30 * 24 * time.Hour
	TokenCookieName    = "token"
)

const principalKey = "principal"

// JwtCustomClaims for JWT token
type JwtCustomClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

// Valid implements the Claims interface for Echo's JWT middleware
func (c JwtCustomClaims) Valid() error {
	now := time.Now().Unix()
	if c.ExpiresAt == 0 {
		return errors.New("token has no expiry")
	}
	if now > c.ExpiresAt {
		return errors.New("token is expired")
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return errors.New("token used before valid")
	}
	if c.UserID == "" || c.Role == "" {
		return errors.New("token is missing subject")
	}
	return nil
}

// GetJWTSecret returns the JWT secret from environment variables
func GetJWTSecret() (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", errors.New("JWT_SECRET environment variable is required")
	}
	return secret, nil
}

// GenerateJWT signs a token for the user. The returned duration is the
// token lifetime, used for the cookie Max-Age.
func GenerateJWT(secret string, user *models.User, rememberMe bool) (string, time.Duration, error) {
	if secret == "" {
		return "", 0, errors.New("JWT secret is not configured")
	}
	ttl := TokenTTL
	if rememberMe {
		ttl = RememberMeTokenTTL
	}

	now := time.Now()
	claims := &JwtCustomClaims{
		UserID: user.ID.Hex(),
		Email:  user.Email,
		Role:   user.Role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
			Issuer:    "nairobi-verified",
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", 0, err
	}
	return signed, ttl, nil
}

// Authenticator validates tokens, checks the blacklist and the account state
// and stores the resulting principal on the echo context.
type Authenticator struct {
	secret    string
	blacklist TokenBlacklist
	users     *services.AuthService
}

func NewAuthenticator(secret string, blacklist TokenBlacklist, users *services.AuthService) *Authenticator {
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}
	return &Authenticator{secret: secret, blacklist: blacklist, users: users}
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, models.Response{
		Status:  http.StatusUnauthorized,
		Message: message,
	})
}

func (a *Authenticator) jwtConfig(optional bool) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(a.secret),
		SigningMethod: middleware.AlgorithmHS256,
		Claims:        &JwtCustomClaims{},
		TokenLookup:   "header:Authorization:Bearer ,cookie:" + TokenCookieName + ",query:token",
		// optional routes fall through when no credentials were sent
		ContinueOnIgnoredError: optional,
		ErrorHandlerWithContext: func(err error, c echo.Context) error {
			if optional && errors.Is(err, middleware.ErrJWTMissing) {
				return nil
			}
			log.Printf("JWT middleware error on %s: %v", c.Request().URL.Path, err)
			if errors.Is(err, middleware.ErrJWTMissing) {
				return unauthorized(c, "Authentication required")
			}
			return unauthorized(c, "Invalid or expired token")
		},
	}
}

// Middleware requires a valid token
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return a.build(false)
}

// Optional attaches the principal when a token is present and lets
// anonymous requests through.
func (a *Authenticator) Optional() echo.MiddlewareFunc {
	return a.build(true)
}

func (a *Authenticator) build(optional bool) echo.MiddlewareFunc {
	if a.secret == "" {
		log.Printf("Warning: JWT_SECRET environment variable is not set, refusing authenticated requests")
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return unauthorized(c, "JWT configuration error")
			}
		}
	}

	jwtMW := middleware.JWTWithConfig(a.jwtConfig(optional))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMW(a.verify(next))
	}
}

// verify runs after signature validation
func (a *Authenticator) verify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return next(c)
		}
		claims := token.Claims.(*JwtCustomClaims)

		principal, err := a.check(c.Request().Context(), token.Raw, claims)
		if err != nil {
			if appErr, ok := services.AsAppError(err); ok {
				return unauthorized(c, appErr.Message)
			}
			return unauthorized(c, "Invalid or expired token")
		}

		c.Set(principalKey, principal)
		c.Set("userId", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("email", claims.Email)
		return next(c)
	}
}

func (a *Authenticator) check(ctx context.Context, raw string, claims *JwtCustomClaims) (*services.Principal, error) {
	revoked, err := a.blacklist.IsRevoked(ctx, raw)
	if err != nil {
		// a blacklist outage must not lock everyone out
		log.Printf("Token blacklist lookup failed: %v", err)
	}
	if revoked {
		return nil, services.ErrUnauthorized("Token has been invalidated")
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, services.ErrUnauthorized("Invalid token subject")
	}

	role := claims.Role
	if a.users != nil {
		user, err := a.users.ActiveUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		role = user.Role
	}
	return &services.Principal{UserID: userID, Role: role}, nil
}

// ParseToken validates a raw token outside the echo middleware chain,
// e.g. during a websocket handshake.
func (a *Authenticator) ParseToken(ctx context.Context, raw string) (*services.Principal, error) {
	if a.secret == "" {
		return nil, services.ErrUnauthorized("JWT configuration error")
	}
	claims := &JwtCustomClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, fmt.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return []byte(a.secret), nil
	})
	if err != nil {
		return nil, services.ErrUnauthorized("Invalid or expired token")
	}
	return a.check(ctx, raw, claims)
}

// Revoke blacklists the token carried by the current request until it expires
func (a *Authenticator) Revoke(c echo.Context) error {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil
	}
	claims := token.Claims.(*JwtCustomClaims)
	return a.blacklist.Revoke(c.Request().Context(), token.Raw, time.Unix(claims.ExpiresAt, 0))
}

// PrincipalFrom returns the authenticated caller, if any
func PrincipalFrom(c echo.Context) (services.Principal, bool) {
	p, ok := c.Get(principalKey).(*services.Principal)
	if !ok || p == nil {
		return services.Principal{}, false
	}
	return *p, true
}

// SetTokenCookie writes the auth cookie issued on login
func SetTokenCookie(c echo.Context, token string, ttl time.Duration, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearTokenCookie expires the auth cookie
func ClearTokenCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
