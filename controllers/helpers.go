package controllers

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/services"
	"github.com/HSouheill/nairobi_verified/utils"
)

const (
	requestTimeout  = 10 * time.Second
	providerTimeout = 30 * time.Second
	maxUploadSize   = 10 << 20 // 10 MB
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func requestContext(c echo.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), timeout)
}

func respond(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, models.Response{Status: status, Message: message, Data: data})
}

// respondError maps service errors onto the response envelope. Unknown
// errors are logged and reported without detail.
func respondError(c echo.Context, err error) error {
	if appErr, ok := services.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			log.Printf("%s %s: %v", c.Request().Method, c.Path(), appErr)
		}
		return respond(c, appErr.Code, appErr.Message, nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Printf("%s %s timed out: %v", c.Request().Method, c.Path(), err)
		return respond(c, http.StatusGatewayTimeout, "Request timed out", nil)
	}
	log.Printf("%s %s: %v", c.Request().Method, c.Path(), err)
	return respond(c, http.StatusInternalServerError, "Internal server error", nil)
}

// bind decodes and validates the request body
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return services.ErrBadRequest("Invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(req); err != nil {
			return services.ErrBadRequest(validationMessage(err))
		}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return "Validation failed: " + strings.Join(parts, ", ")
}

// principal returns the authenticated caller. Routes behind the JWT
// middleware always have one.
func principal(c echo.Context) (services.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return services.Principal{}, services.ErrUnauthorized("Authentication required")
	}
	return p, nil
}

func optionalPrincipal(c echo.Context) *services.Principal {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return nil
	}
	return &p
}

func queryPage(c echo.Context) repositories.Page {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return repositories.Page{Page: page, Limit: limit}.Normalize()
}

// queryFloat reads an amount filter, ignoring values that do not parse
func queryFloat(c echo.Context, name string) float64 {
	v, err := utils.ParseAmount(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return v
}

func queryBool(c echo.Context, name string) *bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	if err != nil {
		return nil
	}
	return &v
}

func paginated(c echo.Context, message string, items interface{}, total int64, page repositories.Page) error {
	return respond(c, http.StatusOK, message, models.NewPaginatedData(items, total, page.Page, page.Limit))
}

// readUpload loads a multipart file into memory
func readUpload(c echo.Context, field string) (*multipart.FileHeader, []byte, error) {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxUploadSize+1<<20)
	file, err := c.FormFile(field)
	if err != nil {
		return nil, nil, services.ErrBadRequest("File field '" + field + "' is required")
	}
	if file.Size > maxUploadSize {
		return nil, nil, services.ErrBadRequest("File exceeds the 10 MB limit")
	}

	src, err := file.Open()
	if err != nil {
		return nil, nil, services.ErrBadRequest("Failed to read uploaded file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		return nil, nil, services.ErrBadRequest("Failed to read uploaded file")
	}
	if len(data) > maxUploadSize {
		return nil, nil, services.ErrBadRequest("File exceeds the 10 MB limit")
	}
	return file, data, nil
}
