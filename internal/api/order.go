package api

import (
	"errors"
	"github.com/daniyalizadpanahi/swiftorder/internal/auth"
	"github.com/daniyalizadpanahi/swiftorder/internal/idempotency"
	"github.com/daniyalizadpanahi/swiftorder/internal/service"
	"github.com/labstack/echo/v4"
	"net/http"
	"strconv"
)

type OrderHandler struct {
	checkoutService *service.CheckoutService
	orderService    *service.OrderService
	keys            *idempotency.Store
}

// NewOrderHandler wires the order endpoints. keys may be nil, in which case
// the Idempotency-Key header is validated but not remembered.
func NewOrderHandler(checkoutService *service.CheckoutService, orderService *service.OrderService, keys *idempotency.Store) *OrderHandler {
	return &OrderHandler{checkoutService: checkoutService, orderService: orderService, keys: keys}
}

type createOrderRequest struct {
	CartID string `json:"cart_id"`
}

func viewerOf(c echo.Context) service.Viewer {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return service.Viewer{}
	}
	return service.Viewer{UserID: claims.UserID, All: claims.Role.Can(auth.OrdersReadAll)}
}

// CreateOrder checks out a cart. A missing or empty cart is a 400, following
// the checkout form rather than the cart resource.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	viewer := viewerOf(c)

	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}

	key := c.Request().Header.Get(idempotency.Header)
	if key != "" {
		orderID, done, err := h.keys.Begin(ctx, viewer.UserID, key)
		if err != nil {
			return writeError(c, err)
		}
		if done {
			order, err := h.orderService.GetOrder(ctx, service.Viewer{UserID: viewer.UserID}, orderID)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(http.StatusOK, order)
		}
	}

	order, err := h.checkoutService.PlaceOrder(ctx, viewer.UserID, req.CartID)
	if err != nil {
		if key != "" {
			h.keys.Abort(ctx, viewer.UserID, key)
		}
		if errors.Is(err, service.ErrCartNotFound) {
			return detail(c, http.StatusBadRequest, service.ErrCartNotFound.Message)
		}
		return writeError(c, err)
	}

	if key != "" {
		h.keys.Complete(ctx, viewer.UserID, key, order.ID)
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	orders, err := h.orderService.ListOrders(c.Request().Context(), viewerOf(c).UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return writeError(c, service.ErrOrderNotFound)
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), viewerOf(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) TrackOrder(c echo.Context) error {
	order, err := h.orderService.GetOrderByTrackingCode(c.Request().Context(), viewerOf(c), c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
