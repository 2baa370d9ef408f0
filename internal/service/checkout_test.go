package service

import (
	"context"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"regexp"
	"sync"
	"testing"
	"time"
)

var trackingCodePattern = regexp.MustCompile(`^[A-Z0-9]{16}$`)

func TestNewTrackingCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Regexp(t, trackingCodePattern, NewTrackingCode())
	}
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("two products, total 2500", func(t *testing.T) {
		// Arrange
		store := newStore()
		carts := NewCartService(store)
		publisher := &fakePublisher{}
		recorder := &fakeRecorder{}
		checkout := NewCheckoutService(store, publisher, recorder)
		a := createProduct(t, store, "A", 1000, 10)
		b := createProduct(t, store, "B", 500, 10)
		cart := cartWith(t, carts, map[*entity.Product]int{a: 2, b: 1})

		// Act
		order, err := checkout.PlaceOrder(ctx, 7, cart.ID)

		// Assert
		require.NoError(t, err)
		assert.EqualValues(t, 2500, order.TotalPrice)
		assert.Regexp(t, trackingCodePattern, order.TrackingCode)
		assert.Equal(t, entity.PaymentPending, order.PaymentStatus)
		assert.EqualValues(t, 7, order.UserID)
		require.Len(t, order.Items, 2)
		for _, item := range order.Items {
			switch item.ProductID {
			case a.ID:
				assert.Equal(t, 2, item.Quantity)
				assert.EqualValues(t, 1000, item.Price)
				assert.EqualValues(t, 2000, item.TotalPrice)
			case b.ID:
				assert.Equal(t, 1, item.Quantity)
				assert.EqualValues(t, 500, item.Price)
			default:
				t.Fatalf("unexpected product %d", item.ProductID)
			}
		}

		after, err := carts.GetCart(ctx, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, after.Items)
		assert.Zero(t, after.TotalPrice)

		events := publisher.Events()
		require.Len(t, events, 1)
		assert.Equal(t, entity.EventOrderCreated, events[0].Type)
		assert.Equal(t, order.TrackingCode, events[0].TrackingCode)
		assert.Equal(t, []string{CheckoutPlaced}, recorder.outcomes)
	})

	t.Run("order total is frozen after checkout", func(t *testing.T) {
		store := newStore()
		carts := NewCartService(store)
		catalog := NewCatalogService(store, nil)
		orders := NewOrderService(store, nil)
		checkout := NewCheckoutService(store, nil, nil)
		a := createProduct(t, store, "A", 1000, 10)
		cart := cartWith(t, carts, map[*entity.Product]int{a: 3})

		placed, err := checkout.PlaceOrder(ctx, 1, cart.ID)
		require.NoError(t, err)
		_, err = catalog.UpdateProduct(ctx, a.ID, ProductInput{Name: "A", Price: 9999, Stock: 10})
		require.NoError(t, err)

		stored, err := orders.GetOrder(ctx, Viewer{UserID: 1}, placed.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 3000, stored.TotalPrice)
		require.Len(t, stored.Items, 1)
		assert.EqualValues(t, 1000, stored.Items[0].Price)
	})

	t.Run("unknown and malformed carts", func(t *testing.T) {
		store := newStore()
		recorder := &fakeRecorder{}
		checkout := NewCheckoutService(store, nil, recorder)

		for _, id := range []string{"not-a-uuid", "", "5f0c1c9e-3b7e-4a53-9a55-6b1f7d0b7a11"} {
			_, err := checkout.PlaceOrder(ctx, 1, id)
			assert.ErrorIs(t, err, ErrCartNotFound, id)
		}
		assert.Equal(t, []string{CheckoutNotFound, CheckoutNotFound, CheckoutNotFound}, recorder.outcomes)
	})

	t.Run("empty cart", func(t *testing.T) {
		store := newStore()
		carts := NewCartService(store)
		checkout := NewCheckoutService(store, nil, nil)
		cart, err := carts.CreateCart(ctx)
		require.NoError(t, err)

		_, err = checkout.PlaceOrder(ctx, 1, cart.ID)

		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("stock is not re-checked at checkout", func(t *testing.T) {
		store := newStore()
		carts := NewCartService(store)
		catalog := NewCatalogService(store, nil)
		checkout := NewCheckoutService(store, nil, nil)
		a := createProduct(t, store, "A", 100, 5)
		cart := cartWith(t, carts, map[*entity.Product]int{a: 5})
		_, err := catalog.UpdateProduct(ctx, a.ID, ProductInput{Name: "A", Price: 100, Stock: 1})
		require.NoError(t, err)

		order, err := checkout.PlaceOrder(ctx, 1, cart.ID)

		require.NoError(t, err)
		assert.Equal(t, 5, order.Items[0].Quantity)
		product, err := store.GetProduct(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, product.Stock)
	})

	t.Run("publisher failure does not fail checkout", func(t *testing.T) {
		store := newStore()
		carts := NewCartService(store)
		checkout := NewCheckoutService(store, &fakePublisher{err: errInjected}, nil)
		a := createProduct(t, store, "A", 100, 5)
		cart := cartWith(t, carts, map[*entity.Product]int{a: 1})

		order, err := checkout.PlaceOrder(ctx, 1, cart.ID)

		require.NoError(t, err)
		assert.NotZero(t, order.ID)
	})
}

func TestPlaceOrderTrackingCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("collision with an existing order regenerates", func(t *testing.T) {
		store := newStore()
		carts := NewCartService(store)
		checkout := NewCheckoutService(store, nil, nil)
		a := createProduct(t, store, "A", 100, 50)

		checkout.newCode, _ = sequence("AAAAAAAAAAAAAAAA")
		first, err := checkout.PlaceOrder(ctx, 1, cartWith(t, carts, map[*entity.Product]int{a: 1}).ID)
		require.NoError(t, err)

		var calls *int
		checkout.newCode, calls = sequence("AAAAAAAAAAAAAAAA", "BBBBBBBBBBBBBBBB")
		second, err := checkout.PlaceOrder(ctx, 1, cartWith(t, carts, map[*entity.Product]int{a: 1}).ID)

		require.NoError(t, err)
		assert.Equal(t, "AAAAAAAAAAAAAAAA", first.TrackingCode)
		assert.Equal(t, "BBBBBBBBBBBBBBBB", second.TrackingCode)
		assert.Equal(t, 2, *calls)
	})

	t.Run("collision at insert re-runs the transaction", func(t *testing.T) {
		base := newStore()
		store := &faultyStore{Store: base, hideCodes: true}
		carts := NewCartService(base)
		checkout := NewCheckoutService(store, nil, nil)
		a := createProduct(t, base, "A", 100, 50)

		checkout.newCode, _ = sequence("AAAAAAAAAAAAAAAA")
		_, err := checkout.PlaceOrder(ctx, 1, cartWith(t, carts, map[*entity.Product]int{a: 1}).ID)
		require.NoError(t, err)

		checkout.newCode, _ = sequence("AAAAAAAAAAAAAAAA", "CCCCCCCCCCCCCCCC")
		cart := cartWith(t, carts, map[*entity.Product]int{a: 2})
		order, err := checkout.PlaceOrder(ctx, 1, cart.ID)

		require.NoError(t, err)
		assert.Equal(t, "CCCCCCCCCCCCCCCC", order.TrackingCode)
		assert.Equal(t, 2, order.Items[0].Quantity)
		after, err := carts.GetCart(ctx, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, after.Items)
	})

	t.Run("exhaustion after ten attempts is fatal", func(t *testing.T) {
		store := newStore()
		carts := NewCartService(store)
		recorder := &fakeRecorder{}
		checkout := NewCheckoutService(store, nil, recorder)
		a := createProduct(t, store, "A", 100, 50)

		checkout.newCode, _ = sequence("AAAAAAAAAAAAAAAA")
		_, err := checkout.PlaceOrder(ctx, 1, cartWith(t, carts, map[*entity.Product]int{a: 1}).ID)
		require.NoError(t, err)

		var calls *int
		checkout.newCode, calls = sequence("AAAAAAAAAAAAAAAA")
		cart := cartWith(t, carts, map[*entity.Product]int{a: 1})
		_, err = checkout.PlaceOrder(ctx, 1, cart.ID)

		assert.ErrorIs(t, err, ErrTrackingCodeExhausted)
		assert.Equal(t, EFATAL, ErrorCode(err))
		assert.Equal(t, MaxTrackingCodeAttempts, *calls)
		after, err := carts.GetCart(ctx, cart.ID)
		require.NoError(t, err)
		assert.Len(t, after.Items, 1)
		assert.Equal(t, CheckoutFailed, recorder.outcomes[len(recorder.outcomes)-1])
	})
}

func TestPlaceOrderAtomicity(t *testing.T) {
	ctx := context.Background()
	faults := []string{"insert_order", "insert_order_items", "delete_cart_items", "touch_cart"}

	for _, fault := range faults {
		t.Run(fault, func(t *testing.T) {
			// Arrange
			base := newStore()
			carts := NewCartService(base)
			checkout := NewCheckoutService(&faultyStore{Store: base, failAt: fault}, nil, nil)
			checkout.newCode, _ = sequence("FAULTFAULTFAULT1")
			a := createProduct(t, base, "A", 1000, 10)
			b := createProduct(t, base, "B", 500, 10)
			cart := cartWith(t, carts, map[*entity.Product]int{a: 2, b: 1})
			before, err := carts.GetCart(ctx, cart.ID)
			require.NoError(t, err)

			// Act
			_, err = checkout.PlaceOrder(ctx, 1, cart.ID)

			// Assert
			assert.ErrorIs(t, err, errInjected)
			assert.Equal(t, EFATAL, ErrorCode(err))

			after, err := carts.GetCart(ctx, cart.ID)
			require.NoError(t, err)
			assert.Equal(t, before.Items, after.Items)
			assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

			exists, err := base.TrackingCodeExists(ctx, "FAULTFAULTFAULT1")
			require.NoError(t, err)
			assert.False(t, exists)
			orders, err := base.ListOrdersByUser(ctx, 1)
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestPlaceOrderConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("same cart twice yields one order", func(t *testing.T) {
		for round := 0; round < 20; round++ {
			store := newStore()
			carts := NewCartService(store)
			checkout := NewCheckoutService(store, nil, nil)
			a := createProduct(t, store, "A", 1000, 10)
			cart := cartWith(t, carts, map[*entity.Product]int{a: 2})

			var (
				wg    sync.WaitGroup
				start = make(chan struct{})
				errs  = make([]error, 2)
			)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, errs[i] = checkout.PlaceOrder(ctx, 1, cart.ID)
				}(i)
			}
			close(start)
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrEmptyCart)
			}
			assert.Equal(t, 1, succeeded)

			orders, err := store.ListOrdersByUser(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, orders, 1)
		}
	})

	t.Run("concurrent checkouts get distinct tracking codes", func(t *testing.T) {
		const n = 50
		store := newStore()
		carts := NewCartService(store)
		checkout := NewCheckoutService(store, nil, nil)
		a := createProduct(t, store, "A", 10, n)

		ids := make([]string, n)
		for i := range ids {
			ids[i] = cartWith(t, carts, map[*entity.Product]int{a: 1}).ID
		}

		var wg sync.WaitGroup
		codes := make([]string, n)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				order, err := checkout.PlaceOrder(ctx, int64(i), ids[i])
				if assert.NoError(t, err) {
					codes[i] = order.TrackingCode
				}
			}(i)
		}
		wg.Wait()

		distinct := map[string]bool{}
		for _, code := range codes {
			assert.Regexp(t, trackingCodePattern, code)
			distinct[code] = true
		}
		assert.Len(t, distinct, n)
	})

	t.Run("lock held elsewhere fails busy and leaves the cart", func(t *testing.T) {
		store := memory.NewStore(30 * time.Millisecond)
		carts := NewCartService(store)
		recorder := &fakeRecorder{}
		checkout := NewCheckoutService(store, nil, recorder)
		a := createProduct(t, store, "A", 10, 5)
		cart := cartWith(t, carts, map[*entity.Product]int{a: 1})

		held := make(chan struct{})
		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = store.Atomic(ctx, func(tx repository.Tx) error {
				assert.NoError(t, tx.LockCart(ctx, cart.ID))
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		_, err := checkout.PlaceOrder(ctx, 1, cart.ID)
		close(release)
		<-done

		assert.ErrorIs(t, err, ErrCheckoutBusy)
		assert.Equal(t, EBUSY, ErrorCode(err))
		assert.Equal(t, []string{CheckoutBusy}, recorder.outcomes)
		after, err := carts.GetCart(ctx, cart.ID)
		require.NoError(t, err)
		assert.Len(t, after.Items, 1)
	})
}
