package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"math/rand"
	"time"
)

const (
	TrackingCodeLength      = 16
	MaxTrackingCodeAttempts = 10

	trackingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Checkout outcomes reported to a CheckoutRecorder.
const (
	CheckoutPlaced    = "placed"
	CheckoutEmptyCart = "empty_cart"
	CheckoutNotFound  = "cart_not_found"
	CheckoutBusy      = "busy"
	CheckoutFailed    = "failed"
)

var errTrackingCodeTaken = errors.New("tracking code taken")

// EventPublisher delivers order events after the transaction that produced
// them has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.OrderEvent) error
}

type CheckoutRecorder interface {
	ObserveCheckout(outcome string)
}

// NewTrackingCode returns a random code of TrackingCodeLength characters from A-Z0-9.
func NewTrackingCode() string {
	code := make([]byte, TrackingCodeLength)
	for i := range code {
		code[i] = trackingCodeAlphabet[rand.Intn(len(trackingCodeAlphabet))]
	}
	return string(code)
}

// CheckoutService turns carts into orders.
type CheckoutService struct {
	store     repository.Store
	publisher EventPublisher
	recorder  CheckoutRecorder
	newCode   func() string
	now       func() time.Time
}

// NewCheckoutService creates a new instance of CheckoutService. publisher and
// recorder may be nil.
func NewCheckoutService(store repository.Store, publisher EventPublisher, recorder CheckoutRecorder) *CheckoutService {
	return &CheckoutService{
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		newCode:   NewTrackingCode,
		now:       time.Now,
	}
}

// PlaceOrder converts the cart into a pending order owned by userID.
//
// The order, its items and the emptying of the cart commit together under the
// cart row lock. Prices are read inside the transaction and frozen into the
// order items. Stock is not re-checked: the cart is honored as booked.
// A concurrent checkout of the same cart that loses the lock race sees an
// empty cart and fails with ErrEmptyCart.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID int64, cartID string) (*entity.Order, error) {
	order, err := s.placeOrder(ctx, userID, cartID)
	s.observe(err)
	if err != nil {
		return nil, err
	}

	logger.Info().Msgf("Order %d placed for user %d with tracking code %s, total %d", order.ID, userID, order.TrackingCode, order.TotalPrice)
	s.publish(ctx, entity.EventOrderCreated, order)
	return order, nil
}

func (s *CheckoutService) placeOrder(ctx context.Context, userID int64, cartID string) (*entity.Order, error) {
	id, err := parseCartID(cartID)
	if err != nil {
		return nil, err
	}

	cart, err := s.store.GetCart(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting cart %s", id)
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	for attempt := 1; attempt <= MaxTrackingCodeAttempts; attempt++ {
		code := s.newCode()
		exists, err := s.store.TrackingCodeExists(ctx, code)
		if err != nil {
			logger.Error().Err(err).Msg("Error checking tracking code")
			return nil, fmt.Errorf("check tracking code: %w", err)
		}
		if exists {
			logger.Warn().Msgf("Tracking code collision on attempt %d", attempt)
			continue
		}

		order, err := s.checkout(ctx, userID, id, code)
		if errors.Is(err, errTrackingCodeTaken) {
			logger.Warn().Msgf("Tracking code taken at insert on attempt %d", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}

	logger.Error().Msgf("Could not allocate a tracking code for cart %s after %d attempts", id, MaxTrackingCodeAttempts)
	return nil, ErrTrackingCodeExhausted
}

// checkout runs the transactional part of PlaceOrder with a fixed tracking code.
func (s *CheckoutService) checkout(ctx context.Context, userID int64, cartID, code string) (*entity.Order, error) {
	var order *entity.Order
	err := s.store.Atomic(ctx, func(tx repository.Tx) error {
		if err := lockCart(ctx, tx, cartID, ErrCheckoutBusy); err != nil {
			return err
		}

		items, err := tx.ListCartItems(ctx, cartID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		now := s.now().UTC()
		order = &entity.Order{
			UserID:        userID,
			PaymentStatus: entity.PaymentPending,
			TrackingCode:  code,
			Items:         make([]entity.OrderItem, 0, len(items)),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for _, item := range items {
			order.TotalPrice += item.Subtotal()
			order.Items = append(order.Items, entity.OrderItem{
				ProductID:   item.ProductID,
				ProductName: item.Product.Name,
				Quantity:    item.Quantity,
				Price:       item.Product.Price,
			})
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errTrackingCodeTaken
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.InsertOrderItems(ctx, order.ID, order.Items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		if _, err := tx.DeleteCartItems(ctx, cartID); err != nil {
			return fmt.Errorf("empty cart: %w", err)
		}
		return tx.TouchCart(ctx, cartID, now)
	})

	switch {
	case err == nil:
		return order.Priced(), nil
	case errors.Is(err, repository.ErrLockTimeout):
		return nil, ErrCheckoutBusy
	case ErrorCode(err) == EFATAL && !errors.Is(err, errTrackingCodeTaken):
		logger.Error().Err(err).Msgf("Checkout of cart %s rolled back", cartID)
	}
	return nil, err
}

func (s *CheckoutService) observe(err error) {
	if s.recorder == nil {
		return
	}

	switch {
	case err == nil:
		s.recorder.ObserveCheckout(CheckoutPlaced)
	case errors.Is(err, ErrEmptyCart):
		s.recorder.ObserveCheckout(CheckoutEmptyCart)
	case errors.Is(err, ErrCartNotFound):
		s.recorder.ObserveCheckout(CheckoutNotFound)
	case errors.Is(err, ErrCheckoutBusy):
		s.recorder.ObserveCheckout(CheckoutBusy)
	default:
		s.recorder.ObserveCheckout(CheckoutFailed)
	}
}

// publish sends an order event. Failures are logged and never reach the caller.
func (s *CheckoutService) publish(ctx context.Context, eventType string, order *entity.Order) {
	publishOrderEvent(ctx, s.publisher, eventType, order, s.now())
}

func publishOrderEvent(ctx context.Context, publisher EventPublisher, eventType string, order *entity.Order, at time.Time) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, entity.NewOrderEvent(eventType, order, at.UTC())); err != nil {
		logger.Error().Err(err).Msgf("Error publishing %s event for order %d", eventType, order.ID)
	}
}
