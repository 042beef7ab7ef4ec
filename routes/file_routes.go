package routes

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
	"github.com/HSouheill/nairobi_verified/models"
)

// RegisterFileRoutes serves files written by the local file store.
// Verification documents are only served to admins.
func RegisterFileRoutes(e *echo.Echo, uploadDir string, auth *middleware.Authenticator) {
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	e.GET("/uploads/documents/*", ServeFile(filepath.Join(uploadDir, "documents"), false),
		auth.Middleware(), middleware.RequireCapability(middleware.CapMerchantsVerify))
	e.GET("/uploads/*", ServeFile(uploadDir, true))
}

// ServeFile handles serving uploaded files with proper security checks
func ServeFile(baseDir string, public bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Param("*")
		if path == "" {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "File not found",
			})
		}

		// Clean the path to prevent directory traversal
		cleanPath := filepath.Clean("/" + path)[1:]
		if cleanPath == "" || (public && (cleanPath == "documents" || strings.HasPrefix(cleanPath, "documents/"))) {
			return c.JSON(http.StatusForbidden, models.Response{
				Status:  http.StatusForbidden,
				Message: "Access denied",
			})
		}

		fullPath := filepath.Join(baseDir, cleanPath)

		info, err := os.Stat(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				return c.JSON(http.StatusNotFound, models.Response{
					Status:  http.StatusNotFound,
					Message: "File not found",
				})
			}
			log.Printf("Error accessing file %s: %v", fullPath, err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Error accessing file",
			})
		}

		// Don't allow directory listing
		if info.IsDir() {
			return c.JSON(http.StatusForbidden, models.Response{
				Status:  http.StatusForbidden,
				Message: "Access denied - directory listing not allowed",
			})
		}

		if public {
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000")
			c.Response().Header().Set("Expires", time.Now().AddDate(1, 0, 0).Format(time.RFC1123))
		} else {
			c.Response().Header().Set("Cache-Control", "private, no-store")
		}
		return c.File(fullPath)
	}
}
