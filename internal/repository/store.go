package repository

import (
	"context"
	"errors"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist, or a referenced parent row is missing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced is returned when a delete is blocked by rows that still point at the record.
	ErrReferenced = errors.New("record is still referenced")
	// ErrLockTimeout is returned when a row lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock wait timeout exceeded")
)

type ProductFilter struct {
	CategoryID int64
	Search     string
	Offset     int
	Limit      int
}

// Queries is the set of single-statement operations shared by a Store and a Tx.
type Queries interface {
	CreateProduct(ctx context.Context, product *entity.Product) error
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, category *entity.Category) error
	GetCategory(ctx context.Context, id int64) (*entity.Category, error)
	ListCategories(ctx context.Context) ([]entity.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	AddProductCategory(ctx context.Context, link *entity.ProductCategory) error

	CreateCart(ctx context.Context, cart *entity.Cart) error
	GetCart(ctx context.Context, id string) (*entity.Cart, error)
	TouchCart(ctx context.Context, id string, at time.Time) error
	DeleteCart(ctx context.Context, id string) error
	ListCartItems(ctx context.Context, cartID string) ([]entity.CartItem, error)
	GetCartItem(ctx context.Context, cartID string, itemID int64) (*entity.CartItem, error)
	FindCartItem(ctx context.Context, cartID string, productID int64) (*entity.CartItem, error)
	CreateCartItem(ctx context.Context, item *entity.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, itemID int64) error
	DeleteCartItems(ctx context.Context, cartID string) (int64, error)

	TrackingCodeExists(ctx context.Context, code string) (bool, error)
	InsertOrder(ctx context.Context, order *entity.Order) error
	InsertOrderItems(ctx context.Context, orderID int64, items []entity.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*entity.Order, error)
	GetOrderByTrackingCode(ctx context.Context, code string) (*entity.Order, error)
	GetOrderByAuthority(ctx context.Context, authority string) (*entity.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]entity.Order, error)
	SetOrderAuthority(ctx context.Context, id int64, authority string, at time.Time) error
	// UpdatePaymentStatus moves an order from one status to another and reports
	// whether a row was changed. It does nothing if the stored status is not from.
	UpdatePaymentStatus(ctx context.Context, id int64, from, to entity.PaymentStatus, at time.Time) (bool, error)
}

// Tx is the unit of work handed to Store.Atomic callbacks.
type Tx interface {
	Queries
	// LockCart holds the cart row exclusively until the transaction ends.
	// It returns ErrNotFound for unknown carts and ErrLockTimeout when the
	// configured wait elapses.
	LockCart(ctx context.Context, id string) error
}

type Store interface {
	Queries
	// Atomic runs fn in a transaction. A non-nil error from fn rolls back every write.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
