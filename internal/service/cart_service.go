package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"github.com/google/uuid"
	"time"
)

const (
	msgQuantityMin   = "Ensure this value is greater than or equal to 1."
	msgQuantityMax   = "Ensure this value is less than or equal to 32767."
	msgNoSuchProduct = "There is no product with given id"
)

// CartService manages anonymous carts and their items. Every write locks the
// cart row first, so concurrent writers and checkout serialize per cart.
type CartService struct {
	store repository.Store
	now   func() time.Time
}

// NewCartService creates a new instance of CartService
func NewCartService(store repository.Store) *CartService {
	return &CartService{store: store, now: time.Now}
}

// parseCartID normalizes a cart id. Malformed ids can never exist, so they are
// reported as a missing cart.
func parseCartID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrCartNotFound
	}
	return parsed.String(), nil
}

func validateQuantity(quantity int) error {
	switch {
	case quantity < 1:
		return ValidationError{"quantity": {msgQuantityMin}}
	case quantity > entity.MaxItemQuantity:
		return ValidationError{"quantity": {msgQuantityMax}}
	}
	return nil
}

// lockCart takes the cart row lock inside tx and translates storage failures.
func lockCart(ctx context.Context, tx repository.Tx, cartID string, busy *Error) error {
	err := tx.LockCart(ctx, cartID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrCartNotFound
	case errors.Is(err, repository.ErrLockTimeout):
		logger.Warn().Msgf("Timed out waiting for the lock on cart %s", cartID)
		return busy
	}
	return fmt.Errorf("lock cart %s: %w", cartID, err)
}

// atomicCart runs fn in a transaction holding the cart lock.
func (s *CartService) atomicCart(ctx context.Context, cartID string, fn func(tx repository.Tx) error) error {
	err := s.store.Atomic(ctx, func(tx repository.Tx) error {
		if err := lockCart(ctx, tx, cartID, ErrCartBusy); err != nil {
			return err
		}
		return fn(tx)
	})
	if errors.Is(err, repository.ErrLockTimeout) {
		return ErrCartBusy
	}
	return err
}

// CreateCart persists a new empty cart with a random id.
func (s *CartService) CreateCart(ctx context.Context) (*entity.Cart, error) {
	now := s.now().UTC()
	cart := &entity.Cart{
		ID:        uuid.NewString(),
		Items:     []entity.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateCart(ctx, cart); err != nil {
		logger.Error().Err(err).Msg("Error creating cart")
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// GetCart returns the cart priced against current product prices.
func (s *CartService) GetCart(ctx context.Context, cartID string) (*entity.Cart, error) {
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
	return cart.Priced(), nil
}

func (s *CartService) DeleteCart(ctx context.Context, cartID string) error {
	id, err := parseCartID(cartID)
	if err != nil {
		return err
	}

	return s.atomicCart(ctx, id, func(tx repository.Tx) error {
		if err := tx.DeleteCart(ctx, id); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	})
}

func (s *CartService) ListItems(ctx context.Context, cartID string) ([]entity.CartItem, error) {
	cart, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func (s *CartService) GetItem(ctx context.Context, cartID string, itemID int64) (*entity.CartItem, error) {
	id, err := parseCartID(cartID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCart(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	item, err := s.store.GetCartItem(ctx, id, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	item.TotalPrice = item.Subtotal()
	return item, nil
}

// AddItem adds quantity units of a product to the cart, merging into an
// existing line for the same product. The resulting quantity must fit in
// stock, otherwise the cart is left untouched.
func (s *CartService) AddItem(ctx context.Context, cartID string, productID int64, quantity int) (*entity.CartItem, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	id, err := parseCartID(cartID)
	if err != nil {
		return nil, err
	}

	var item *entity.CartItem
	err = s.atomicCart(ctx, id, func(tx repository.Tx) error {
		product, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return ValidationError{"product_id": {msgNoSuchProduct}}
		}
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}

		existing, err := tx.FindCartItem(ctx, id, productID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			item = &entity.CartItem{CartID: id, ProductID: productID, Quantity: quantity}
		case err != nil:
			return fmt.Errorf("find cart item: %w", err)
		default:
			item = existing
			item.Quantity += quantity
		}

		if item.Quantity > entity.MaxItemQuantity {
			return ValidationError{"quantity": {msgQuantityMax}}
		}
		if item.Quantity > product.Stock {
			logger.Warn().Msgf("Product %d has %d in stock, cart %s asked for %d", productID, product.Stock, id, item.Quantity)
			return ErrInsufficientStock
		}

		if item.ID == 0 {
			err = tx.CreateCartItem(ctx, item)
		} else {
			err = tx.UpdateCartItemQuantity(ctx, item.ID, item.Quantity)
		}
		if err != nil {
			return fmt.Errorf("save cart item: %w", err)
		}
		item.Product = *product
		return tx.TouchCart(ctx, id, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	item.TotalPrice = item.Subtotal()
	return item, nil
}

// UpdateItemQuantity sets the quantity of a cart line. When stock is short the
// line is reconciled and the reconciliation is reported as an error: with no
// stock the line is deleted (ErrOutOfStock), otherwise it is clamped to the
// available stock (*QuantityClampedError). Both outcomes are committed.
func (s *CartService) UpdateItemQuantity(ctx context.Context, cartID string, itemID int64, quantity int) (*entity.CartItem, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	id, err := parseCartID(cartID)
	if err != nil {
		return nil, err
	}

	var (
		item    *entity.CartItem
		outcome error
	)
	err = s.atomicCart(ctx, id, func(tx repository.Tx) error {
		var err error
		item, err = tx.GetCartItem(ctx, id, itemID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCartItemNotFound
		}
		if err != nil {
			return fmt.Errorf("get cart item: %w", err)
		}

		stock := item.Product.Stock
		switch {
		case quantity <= stock:
			item.Quantity = quantity
			err = tx.UpdateCartItemQuantity(ctx, item.ID, item.Quantity)
		case stock == 0:
			logger.Warn().Msgf("Product %d is out of stock, removing item %d from cart %s", item.ProductID, item.ID, id)
			outcome = ErrOutOfStock
			err = tx.DeleteCartItem(ctx, item.ID)
		default:
			logger.Warn().Msgf("Clamping item %d of cart %s from %d to %d", item.ID, id, quantity, stock)
			item.Quantity = stock
			outcome = &QuantityClampedError{Quantity: stock}
			err = tx.UpdateCartItemQuantity(ctx, item.ID, item.Quantity)
		}
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return tx.TouchCart(ctx, id, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return nil, outcome
	}

	item.TotalPrice = item.Subtotal()
	return item, nil
}

func (s *CartService) RemoveItem(ctx context.Context, cartID string, itemID int64) error {
	id, err := parseCartID(cartID)
	if err != nil {
		return err
	}

	return s.atomicCart(ctx, id, func(tx repository.Tx) error {
		if _, err := tx.GetCartItem(ctx, id, itemID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartItemNotFound
			}
			return fmt.Errorf("get cart item: %w", err)
		}
		if err := tx.DeleteCartItem(ctx, itemID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		return tx.TouchCart(ctx, id, s.now().UTC())
	})
}

// ClearCart deletes every item of the cart. Clearing an empty cart succeeds.
func (s *CartService) ClearCart(ctx context.Context, cartID string) error {
	id, err := parseCartID(cartID)
	if err != nil {
		return err
	}

	return s.atomicCart(ctx, id, func(tx repository.Tx) error {
		n, err := tx.DeleteCartItems(ctx, id)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if n == 0 {
			return nil
		}
		return tx.TouchCart(ctx, id, s.now().UTC())
	})
}
