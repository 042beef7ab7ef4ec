package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/services"
)

type PackageController struct {
	packages *services.PackageService
}

func NewPackageController(packages *services.PackageService) *PackageController {
	return &PackageController{packages: packages}
}

// ListPackages is public and returns active packages only
func (pc *PackageController) ListPackages(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	packages, err := pc.packages.List(ctx, true)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Packages retrieved successfully", packages)
}

func (pc *PackageController) ListAllPackages(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	packages, err := pc.packages.List(ctx, false)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Packages retrieved successfully", packages)
}

func (pc *PackageController) GetPackage(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	pkg, err := pc.packages.Get(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Package retrieved successfully", pkg)
}

func (pc *PackageController) CreatePackage(c echo.Context) error {
	var req models.PackageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	pkg, err := pc.packages.Create(ctx, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "Package created successfully", pkg)
}

func (pc *PackageController) UpdatePackage(c echo.Context) error {
	var req models.PackageRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	pkg, err := pc.packages.Update(ctx, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Package updated successfully", pkg)
}

// DeletePackage deactivates a package still held by subscriptions
func (pc *PackageController) DeletePackage(c echo.Context) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := pc.packages.Delete(ctx, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Package removed successfully", nil)
}
