package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/services"
)

type MerchantController struct {
	merchants *services.MerchantService
}

func NewMerchantController(merchants *services.MerchantService) *MerchantController {
	return &MerchantController{merchants: merchants}
}

// UploadDocument takes a multipart "document" file and a "type" field
func (mc *MerchantController) UploadDocument(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	file, data, err := readUpload(c, "document")
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	merchant, err := mc.merchants.SubmitDocument(ctx, p, c.FormValue("type"), file.Filename, data)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Document submitted for verification", merchant)
}

func (mc *MerchantController) GetProfile(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	merchant, err := mc.merchants.PublicProfile(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Merchant retrieved successfully", merchant)
}

// GetQRCode serves the verified badge QR code as PNG
func (mc *MerchantController) GetQRCode(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	png, err := mc.merchants.BadgeQRCode(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=3600")
	return c.Blob(http.StatusOK, "image/png", png)
}

func (mc *MerchantController) ListMerchants(c echo.Context) error {
	page := queryPage(c)

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	merchants, total, err := mc.merchants.List(ctx, c.QueryParam("status"), c.QueryParam("search"), page)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Merchants retrieved successfully", merchants, total, page)
}

func (mc *MerchantController) VerifyMerchant(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	merchant, err := mc.merchants.Verify(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Merchant verified successfully", merchant)
}

func (mc *MerchantController) RejectMerchant(c echo.Context) error {
	var req models.RejectMerchantRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	merchant, err := mc.merchants.Reject(ctx, c.Param("id"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Merchant rejected", merchant)
}
