package memory

import (
	"context"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func seed(t *testing.T, s *Store) (*entity.Product, *entity.Cart) {
	t.Helper()
	ctx := context.Background()

	product := &entity.Product{Name: "Mug", Price: 1000, Stock: 10}
	require.NoError(t, s.CreateProduct(ctx, product))

	cart := &entity.Cart{ID: "c0ffee00-0000-4000-8000-000000000001"}
	require.NoError(t, s.CreateCart(ctx, cart))
	require.NoError(t, s.CreateCartItem(ctx, &entity.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 2}))
	return product, cart
}

func TestAtomicRollback(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s := NewStore(time.Second)
	product, cart := seed(t, s)
	boom := errors.New("boom")

	// Act
	err := s.Atomic(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.LockCart(ctx, cart.ID))
		order := &entity.Order{UserID: 1, TrackingCode: "AAAAAAAAAAAAAAAA", PaymentStatus: entity.PaymentPending}
		require.NoError(t, tx.InsertOrder(ctx, order))
		require.NoError(t, tx.InsertOrderItems(ctx, order.ID, []entity.OrderItem{{ProductID: product.ID, Quantity: 2, Price: 1000}}))
		_, err := tx.DeleteCartItems(ctx, cart.ID)
		require.NoError(t, err)
		return boom
	})

	// Assert
	assert.ErrorIs(t, err, boom)
	orders, err := s.ListOrdersByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)

	stored, err := s.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.Equal(t, "Mug", stored.Items[0].Product.Name)
}

func TestLockCart(t *testing.T) {
	ctx := context.Background()

	t.Run("second locker times out while the first holds the cart", func(t *testing.T) {
		s := NewStore(50 * time.Millisecond)
		_, cart := seed(t, s)

		held := make(chan struct{})
		done := make(chan struct{})
		go func() {
			_ = s.Atomic(ctx, func(tx repository.Tx) error {
				assert.NoError(t, tx.LockCart(ctx, cart.ID))
				close(held)
				<-done
				return nil
			})
		}()
		<-held

		err := s.Atomic(ctx, func(tx repository.Tx) error {
			return tx.LockCart(ctx, cart.ID)
		})
		close(done)

		assert.ErrorIs(t, err, repository.ErrLockTimeout)
	})

	t.Run("lock is released when Atomic returns", func(t *testing.T) {
		s := NewStore(50 * time.Millisecond)
		_, cart := seed(t, s)

		for i := 0; i < 3; i++ {
			err := s.Atomic(ctx, func(tx repository.Tx) error {
				require.NoError(t, tx.LockCart(ctx, cart.ID))
				return tx.LockCart(ctx, cart.ID)
			})
			require.NoError(t, err)
		}
	})

	t.Run("unknown cart", func(t *testing.T) {
		s := NewStore(50 * time.Millisecond)
		err := s.Atomic(ctx, func(tx repository.Tx) error {
			return tx.LockCart(ctx, "missing")
		})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestCartLocksFollowCartLifetime(t *testing.T) {
	ctx := context.Background()
	lockCount := func(s *Store) int {
		s.t.locksMu.Lock()
		defer s.t.locksMu.Unlock()
		return len(s.t.locks)
	}

	t.Run("unknown carts leave no lock behind", func(t *testing.T) {
		// Arrange
		s := NewStore(50 * time.Millisecond)

		// Act
		for i := 0; i < 100; i++ {
			err := s.Atomic(ctx, func(tx repository.Tx) error {
				return tx.LockCart(ctx, fmt.Sprintf("missing-%d", i))
			})
			require.ErrorIs(t, err, repository.ErrNotFound)
		}

		// Assert
		assert.Zero(t, lockCount(s))
	})

	t.Run("deleting the cart drops its lock", func(t *testing.T) {
		s := NewStore(50 * time.Millisecond)
		_, cart := seed(t, s)
		require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
			return tx.LockCart(ctx, cart.ID)
		}))
		require.Equal(t, 1, lockCount(s))

		err := s.Atomic(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.LockCart(ctx, cart.ID))
			return tx.DeleteCart(ctx, cart.ID)
		})

		require.NoError(t, err)
		assert.Zero(t, lockCount(s))
	})

	t.Run("rolled back delete keeps the lock", func(t *testing.T) {
		s := NewStore(50 * time.Millisecond)
		_, cart := seed(t, s)
		boom := errors.New("boom")

		err := s.Atomic(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.LockCart(ctx, cart.ID))
			require.NoError(t, tx.DeleteCart(ctx, cart.ID))
			return boom
		})

		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, lockCount(s))
		require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
			return tx.LockCart(ctx, cart.ID)
		}))
	})
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades to cart items", func(t *testing.T) {
		s := NewStore(time.Second)
		product, cart := seed(t, s)

		require.NoError(t, s.DeleteProduct(ctx, product.ID))

		items, err := s.ListCartItems(ctx, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("rejected while ordered", func(t *testing.T) {
		s := NewStore(time.Second)
		product, _ := seed(t, s)
		order := &entity.Order{UserID: 1, TrackingCode: "BBBBBBBBBBBBBBBB", PaymentStatus: entity.PaymentPending}
		require.NoError(t, s.InsertOrder(ctx, order))
		require.NoError(t, s.InsertOrderItems(ctx, order.ID, []entity.OrderItem{{ProductID: product.ID, Quantity: 1, Price: 1000}}))

		err := s.DeleteProduct(ctx, product.ID)

		assert.ErrorIs(t, err, repository.ErrReferenced)
	})
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	product, cart := seed(t, s)

	err := s.CreateCartItem(ctx, &entity.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	require.NoError(t, s.InsertOrder(ctx, &entity.Order{TrackingCode: "CCCCCCCCCCCCCCCC"}))
	err = s.InsertOrder(ctx, &entity.Order{TrackingCode: "CCCCCCCCCCCCCCCC"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	require.NoError(t, s.CreateCategory(ctx, &entity.Category{Name: "Kitchen"}))
	err = s.CreateCategory(ctx, &entity.Category{Name: "Kitchen"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestUpdatePaymentStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	order := &entity.Order{TrackingCode: "DDDDDDDDDDDDDDDD", PaymentStatus: entity.PaymentPending}
	require.NoError(t, s.InsertOrder(ctx, order))

	changed, err := s.UpdatePaymentStatus(ctx, order.ID, entity.PaymentPending, entity.PaymentCompleted, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.UpdatePaymentStatus(ctx, order.ID, entity.PaymentPending, entity.PaymentFailed, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentCompleted, stored.PaymentStatus)
}

func TestListProductsFilter(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	for _, name := range []string{"Red Mug", "Blue Mug", "Pen"} {
		require.NoError(t, s.CreateProduct(ctx, &entity.Product{Name: name, Price: 100}))
	}
	category := &entity.Category{Name: "Mugs"}
	require.NoError(t, s.CreateCategory(ctx, category))
	require.NoError(t, s.AddProductCategory(ctx, &entity.ProductCategory{ProductID: 1, CategoryID: category.ID}))

	tests := []struct {
		name     string
		filter   repository.ProductFilter
		expected []string
	}{
		{name: "all", filter: repository.ProductFilter{}, expected: []string{"Red Mug", "Blue Mug", "Pen"}},
		{name: "search is case insensitive", filter: repository.ProductFilter{Search: "mug"}, expected: []string{"Red Mug", "Blue Mug"}},
		{name: "by category", filter: repository.ProductFilter{CategoryID: category.ID}, expected: []string{"Red Mug"}},
		{name: "paged", filter: repository.ProductFilter{Offset: 1, Limit: 1}, expected: []string{"Blue Mug"}},
		{name: "offset past the end", filter: repository.ProductFilter{Offset: 10, Limit: 5}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := s.ListProducts(ctx, tt.filter)
			require.NoError(t, err)

			names := []string{}
			for _, p := range products {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}
