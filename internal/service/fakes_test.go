package service

import (
	"context"
	"errors"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

var errInjected = errors.New("injected fault")

func newStore() *memory.Store {
	return memory.NewStore(2 * time.Second)
}

func createProduct(t *testing.T, store repository.Store, name string, price int64, stock int) *entity.Product {
	t.Helper()
	product := &entity.Product{Name: name, Price: price, Stock: stock, CreatedBy: 1}
	require.NoError(t, store.CreateProduct(context.Background(), product))
	return product
}

// cartWith creates a cart holding quantity units of each product.
func cartWith(t *testing.T, carts *CartService, lines map[*entity.Product]int) *entity.Cart {
	t.Helper()
	ctx := context.Background()
	cart, err := carts.CreateCart(ctx)
	require.NoError(t, err)
	for product, quantity := range lines {
		_, err := carts.AddItem(ctx, cart.ID, product.ID, quantity)
		require.NoError(t, err)
	}
	return cart
}

// sequence returns a code generator that yields codes in order and then
// repeats the last one.
func sequence(codes ...string) (func() string, *int) {
	var mu sync.Mutex
	calls := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(calls, len(codes)-1)]
		calls++
		return code
	}, &calls
}

// faultyStore fails the named transactional step of every Atomic call.
type faultyStore struct {
	repository.Store
	failAt string
	// hideCodes makes TrackingCodeExists always report false, as if another
	// checkout inserted the code after the check.
	hideCodes bool
}

func (s *faultyStore) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.Atomic(ctx, func(tx repository.Tx) error {
		return fn(&faultyTx{Tx: tx, failAt: s.failAt})
	})
}

func (s *faultyStore) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	if s.hideCodes {
		return false, nil
	}
	return s.Store.TrackingCodeExists(ctx, code)
}

type faultyTx struct {
	repository.Tx
	failAt string
}

func (tx *faultyTx) InsertOrder(ctx context.Context, order *entity.Order) error {
	if tx.failAt == "insert_order" {
		return errInjected
	}
	return tx.Tx.InsertOrder(ctx, order)
}

func (tx *faultyTx) InsertOrderItems(ctx context.Context, orderID int64, items []entity.OrderItem) error {
	if tx.failAt == "insert_order_items" {
		return errInjected
	}
	return tx.Tx.InsertOrderItems(ctx, orderID, items)
}

func (tx *faultyTx) DeleteCartItems(ctx context.Context, cartID string) (int64, error) {
	if tx.failAt == "delete_cart_items" {
		return 0, errInjected
	}
	return tx.Tx.DeleteCartItems(ctx, cartID)
}

func (tx *faultyTx) TouchCart(ctx context.Context, id string, at time.Time) error {
	if tx.failAt == "touch_cart" {
		return errInjected
	}
	return tx.Tx.TouchCart(ctx, id, at)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []entity.OrderEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event entity.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Events() []entity.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.OrderEvent(nil), p.events...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) ObserveCheckout(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fakeGateway struct {
	authority  string
	requestErr error
	settled    bool
	verifyErr  error
	verified   []string
}

func (g *fakeGateway) Request(ctx context.Context, amount int64, description string) (string, error) {
	return g.authority, g.requestErr
}

func (g *fakeGateway) Verify(ctx context.Context, authority string, amount int64) (bool, error) {
	g.verified = append(g.verified, authority)
	return g.settled, g.verifyErr
}

func (g *fakeGateway) StartURL(authority string) string {
	return "https://gateway.test/StartPay/" + authority
}
