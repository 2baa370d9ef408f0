package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"github.com/rs/zerolog"
	"os"
	"time"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var ErrAuthorityInUse = &Error{Code: ECONFLICT, Message: "Payment authority is already attached to another order"}

// Viewer is the caller reading orders. Orders owned by other users are
// reported as missing unless All is set.
type Viewer struct {
	UserID int64
	All    bool
}

func (v Viewer) canSee(order *entity.Order) bool {
	return v.All || order.UserID == v.UserID
}

// OrderService is a service that provides order-related operations
type OrderService struct {
	store     repository.Store
	publisher EventPublisher
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store repository.Store, publisher EventPublisher) *OrderService {
	return &OrderService{store: store, publisher: publisher, now: time.Now}
}

func (s *OrderService) visible(viewer Viewer, order *entity.Order, err error) (*entity.Order, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		logger.Error().Err(err).Msg("Error getting order")
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !viewer.canSee(order) {
		return nil, ErrOrderNotFound
	}
	return order.Priced(), nil
}

// GetOrder retrieves an order by id
func (s *OrderService) GetOrder(ctx context.Context, viewer Viewer, id int64) (*entity.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	return s.visible(viewer, order, err)
}

// GetOrderByTrackingCode retrieves an order by its public tracking code
func (s *OrderService) GetOrderByTrackingCode(ctx context.Context, viewer Viewer, code string) (*entity.Order, error) {
	if len(code) != TrackingCodeLength {
		return nil, ErrOrderNotFound
	}
	order, err := s.store.GetOrderByTrackingCode(ctx, code)
	return s.visible(viewer, order, err)
}

// ListOrders returns the orders of a user, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]entity.Order, error) {
	orders, err := s.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing orders of user %d", userID)
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for i := range orders {
		orders[i].Priced()
	}
	return orders, nil
}

// SetPaymentStatus is the only way an order changes after checkout. It allows
// pending to completed and pending to failed. The write is conditional on the
// stored status, so of two racing callbacks only one succeeds.
func (s *OrderService) SetPaymentStatus(ctx context.Context, orderID int64, next entity.PaymentStatus) (*entity.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting order by ID %d", orderID)
		return nil, fmt.Errorf("get order: %w", err)
	}

	if !order.PaymentStatus.CanTransitionTo(next) {
		logger.Warn().Msgf("Rejected payment status change of order %d from %s to %s", orderID, order.PaymentStatus, next)
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	changed, err := s.store.UpdatePaymentStatus(ctx, orderID, order.PaymentStatus, next, now)
	if err != nil {
		logger.Error().Err(err).Msgf("Error updating payment status of order %d", orderID)
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	if !changed {
		logger.Warn().Msgf("Payment status of order %d changed concurrently", orderID)
		return nil, ErrInvalidTransition
	}

	order.PaymentStatus = next
	order.UpdatedAt = now
	logger.Info().Msgf("Order %d payment status set to %s", orderID, next)
	publishOrderEvent(ctx, s.publisher, entity.EventOrderPaymentUpdated, order, now)
	return order.Priced(), nil
}

// AttachPaymentAuthority records the gateway token that a later verify
// callback will present for this order.
func (s *OrderService) AttachPaymentAuthority(ctx context.Context, orderID int64, authority string) error {
	err := s.store.SetOrderAuthority(ctx, orderID, authority, s.now().UTC())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrOrderNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrAuthorityInUse
	}
	logger.Error().Err(err).Msgf("Error attaching payment authority to order %d", orderID)
	return fmt.Errorf("set payment authority: %w", err)
}

// GetOrderByAuthority finds the order a gateway callback refers to.
func (s *OrderService) GetOrderByAuthority(ctx context.Context, authority string) (*entity.Order, error) {
	if authority == "" {
		return nil, ErrOrderNotFound
	}
	order, err := s.store.GetOrderByAuthority(ctx, authority)
	return s.visible(Viewer{All: true}, order, err)
}
