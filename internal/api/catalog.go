package api

import (
	"github.com/daniyalizadpanahi/swiftorder/internal/service"
	"github.com/labstack/echo/v4"
	"net/http"
	"strconv"
)

type CatalogHandler struct {
	catalogService *service.CatalogService
}

func NewCatalogHandler(catalogService *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

type addToCategoryRequest struct {
	CategoryID int64 `json:"category_id"`
}

// pageOf reads offset and limit. Unparseable values fall back to the defaults.
func pageOf(c echo.Context) service.Page {
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return service.Page{Offset: offset, Limit: limit}
}

func idParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil
}

func (h *CatalogHandler) ListProducts(c echo.Context) error {
	products, err := h.catalogService.ListProducts(c.Request().Context(), c.QueryParam("search"), pageOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) GetProduct(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return writeError(c, service.ErrProductNotFound)
	}

	product, err := h.catalogService.GetProduct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) CreateProduct(c echo.Context) error {
	var in service.ProductInput
	if err := c.Bind(&in); err != nil {
		return invalidPayload(c)
	}

	product, err := h.catalogService.CreateProduct(c.Request().Context(), viewerOf(c).UserID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, product)
}

func (h *CatalogHandler) UpdateProduct(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return writeError(c, service.ErrProductNotFound)
	}
	var in service.ProductInput
	if err := c.Bind(&in); err != nil {
		return invalidPayload(c)
	}

	product, err := h.catalogService.UpdateProduct(c.Request().Context(), id, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) DeleteProduct(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return writeError(c, service.ErrProductNotFound)
	}
	if err := h.catalogService.DeleteProduct(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHandler) AddProductToCategory(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return writeError(c, service.ErrProductNotFound)
	}
	var req addToCategoryRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}

	link, err := h.catalogService.AddProductToCategory(c.Request().Context(), id, req.CategoryID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, link)
}

func (h *CatalogHandler) ListCategories(c echo.Context) error {
	categories, err := h.catalogService.ListCategories(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *CatalogHandler) ProductsByCategory(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return writeError(c, service.ErrCategoryNotFound)
	}

	products, err := h.catalogService.ProductsByCategory(c.Request().Context(), id, pageOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) CreateCategory(c echo.Context) error {
	var in service.CategoryInput
	if err := c.Bind(&in); err != nil {
		return invalidPayload(c)
	}

	category, err := h.catalogService.CreateCategory(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, category)
}

func (h *CatalogHandler) DeleteCategory(c echo.Context) error {
	id, ok := idParam(c)
	if !ok {
		return writeError(c, service.ErrCategoryNotFound)
	}
	if err := h.catalogService.DeleteCategory(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
