package api

import (
	"github.com/daniyalizadpanahi/swiftorder/internal/service"
	"github.com/labstack/echo/v4"
	"net/http"
	"strconv"
)

type CartHandler struct {
	cartService *service.CartService
}

func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func itemID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	return id, err == nil
}

func (h *CartHandler) CreateCart(c echo.Context) error {
	cart, err := h.cartService.CreateCart(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, cart)
}

func (h *CartHandler) GetCart(c echo.Context) error {
	cart, err := h.cartService.GetCart(c.Request().Context(), c.Param("cart_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) DeleteCart(c echo.Context) error {
	if err := h.cartService.DeleteCart(c.Request().Context(), c.Param("cart_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) ListItems(c echo.Context) error {
	items, err := h.cartService.ListItems(c.Request().Context(), c.Param("cart_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHandler) GetItem(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return writeError(c, service.ErrCartItemNotFound)
	}
	item, err := h.cartService.GetItem(c.Request().Context(), c.Param("cart_id"), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}

	item, err := h.cartService.AddItem(c.Request().Context(), c.Param("cart_id"), req.ProductID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return writeError(c, service.ErrCartItemNotFound)
	}
	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}

	item, err := h.cartService.UpdateItemQuantity(c.Request().Context(), c.Param("cart_id"), id, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	id, ok := itemID(c)
	if !ok {
		return writeError(c, service.ErrCartItemNotFound)
	}
	if err := h.cartService.RemoveItem(c.Request().Context(), c.Param("cart_id"), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	if err := h.cartService.ClearCart(c.Request().Context(), c.Param("cart_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
