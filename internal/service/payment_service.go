package service

import (
	"context"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
)

// Gateway callback status values.
const (
	GatewayStatusOK     = "OK"
	GatewayStatusFailed = "NOK"
)

var (
	ErrOrderNotPayable     = &Error{Code: ECONFLICT, Message: "Order is not awaiting payment"}
	ErrGatewayUnavailable  = &Error{Code: EBUSY, Message: "Payment gateway unavailable, retry later"}
	ErrPaymentNotInitiated = &Error{Code: EINVALID, Message: "Payment could not be initiated"}
)

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	Request(ctx context.Context, amount int64, description string) (authority string, err error)
	Verify(ctx context.Context, authority string, amount int64) (bool, error)
	StartURL(authority string) string
}

type PaymentService struct {
	orders  *OrderService
	gateway PaymentGateway
}

func NewPaymentService(orders *OrderService, gateway PaymentGateway) *PaymentService {
	return &PaymentService{orders: orders, gateway: gateway}
}

// Payment is an opened gateway payment for an order.
type Payment struct {
	OrderID     int64  `json:"order_id"`
	Authority   string `json:"authority"`
	RedirectURL string `json:"redirect_url"`
}

// Initiate opens a gateway payment for a pending order the viewer can see.
func (s *PaymentService) Initiate(ctx context.Context, viewer Viewer, orderID int64) (*Payment, error) {
	order, err := s.orders.GetOrder(ctx, viewer, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != entity.PaymentPending {
		return nil, ErrOrderNotPayable
	}

	authority, err := s.gateway.Request(ctx, order.TotalPrice, fmt.Sprintf("Order %s", order.TrackingCode))
	if err != nil {
		logger.Error().Err(err).Msgf("Error requesting payment for order %d", orderID)
		return nil, ErrPaymentNotInitiated
	}

	if err := s.orders.AttachPaymentAuthority(ctx, order.ID, authority); err != nil {
		return nil, err
	}
	return &Payment{OrderID: order.ID, Authority: authority, RedirectURL: s.gateway.StartURL(authority)}, nil
}

// Verify handles the gateway callback. A status other than OK fails the
// order; otherwise the gateway decides between completed and failed.
func (s *PaymentService) Verify(ctx context.Context, authority, status string) (*entity.Order, error) {
	order, err := s.orders.GetOrderByAuthority(ctx, authority)
	if err != nil {
		return nil, err
	}

	next := entity.PaymentFailed
	if status == GatewayStatusOK {
		settled, err := s.gateway.Verify(ctx, authority, order.TotalPrice)
		if err != nil {
			logger.Error().Err(err).Msgf("Error verifying payment of order %d", order.ID)
			return nil, ErrGatewayUnavailable
		}
		if settled {
			next = entity.PaymentCompleted
		}
	}

	return s.orders.SetPaymentStatus(ctx, order.ID, next)
}
