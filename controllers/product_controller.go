package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/services"
)

type ProductController struct {
	products *services.ProductService
}

func NewProductController(products *services.ProductService) *ProductController {
	return &ProductController{products: products}
}

func productFilter(c echo.Context) (repositories.ProductFilter, error) {
	filter := repositories.ProductFilter{
		Category: c.QueryParam("category"),
		Search:   c.QueryParam("search"),
		MinPrice: queryFloat(c, "minPrice"),
		MaxPrice: queryFloat(c, "maxPrice"),
		Featured: queryBool(c, "featured"),
		Page:     queryPage(c),
	}
	if merchant := c.QueryParam("merchant"); merchant != "" {
		id, err := primitive.ObjectIDFromHex(merchant)
		if err != nil {
			return filter, services.ErrBadRequest("Invalid merchant ID")
		}
		filter.Merchant = &id
	}
	return filter, nil
}

// ListProducts is the public catalogue: active products only
func (pc *ProductController) ListProducts(c echo.Context) error {
	filter, err := productFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	filter.ActiveOnly = true

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	products, total, err := pc.products.List(ctx, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Products retrieved successfully", products, total, filter.Page)
}

// ListAllProducts includes inactive products, for the admin dashboard
func (pc *ProductController) ListAllProducts(c echo.Context) error {
	filter, err := productFilter(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	products, total, err := pc.products.List(ctx, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Products retrieved successfully", products, total, filter.Page)
}

// ListMyProducts returns every product of the calling merchant
func (pc *ProductController) ListMyProducts(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	filter := repositories.ProductFilter{Merchant: &p.UserID, Page: queryPage(c)}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	products, total, err := pc.products.List(ctx, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Products retrieved successfully", products, total, filter.Page)
}

func (pc *ProductController) GetProduct(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	product, err := pc.products.Get(ctx, optionalPrincipal(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Product retrieved successfully", product)
}

// GetLimits reports the calling merchant's product allowance
func (pc *ProductController) GetLimits(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	limits, err := pc.products.Limits(ctx, p.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Product limits retrieved successfully", limits)
}

func (pc *ProductController) CreateProduct(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.ProductRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	product, err := pc.products.Create(ctx, p, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "Product created successfully", product)
}

func (pc *ProductController) UpdateProduct(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.ProductRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	product, err := pc.products.Update(ctx, p, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Product updated successfully", product)
}

func (pc *ProductController) DeleteProduct(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := pc.products.Delete(ctx, p, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Product deleted successfully", nil)
}

// UploadImage accepts a multipart "image" field
func (pc *ProductController) UploadImage(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	file, data, err := readUpload(c, "image")
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	product, err := pc.products.AddImage(ctx, p, c.Param("id"), file.Filename, data)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Image uploaded successfully", product)
}

// RemoveImage deletes the image named by the "url" query parameter
func (pc *ProductController) RemoveImage(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	url := c.QueryParam("url")
	if url == "" {
		return respondError(c, services.ErrBadRequest("Image url is required"))
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	product, err := pc.products.RemoveImage(ctx, p, c.Param("id"), url)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Image removed successfully", product)
}

func (pc *ProductController) ToggleActive(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	product, err := pc.products.ToggleActive(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Product status updated", product)
}

func (pc *ProductController) SetFeatured(c echo.Context) error {
	var req models.FeatureProductRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	product, err := pc.products.SetFeatured(ctx, c.Param("id"), req.Featured)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Product featured flag updated", product)
}
