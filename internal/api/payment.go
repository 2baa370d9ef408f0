package api

import (
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/service"
	"github.com/labstack/echo/v4"
	"net/http"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type initiatePaymentRequest struct {
	OrderID int64 `json:"order_id"`
}

func (h *PaymentHandler) Initiate(c echo.Context) error {
	var req initiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}

	payment, err := h.paymentService.Initiate(c.Request().Context(), viewerOf(c), req.OrderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}

// Verify is the gateway callback, reached by the buyer's browser with the
// Authority and Status query parameters.
func (h *PaymentHandler) Verify(c echo.Context) error {
	status := c.QueryParam("Status")
	order, err := h.paymentService.Verify(c.Request().Context(), c.QueryParam("Authority"), status)
	if err != nil {
		return writeError(c, err)
	}

	switch {
	case order.PaymentStatus == entity.PaymentCompleted:
		return c.JSON(http.StatusOK, map[string]string{"message": "Payment successful!"})
	case status != service.GatewayStatusOK:
		return detail(c, http.StatusBadRequest, "Payment failed or cancelled")
	}
	return detail(c, http.StatusBadRequest, "Payment verification failed")
}
