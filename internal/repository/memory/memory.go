// Package memory is an in-process repository.Store used by tests and by the
// STORE=memory development mode.
//
// Writes are applied immediately and undone on rollback, so uncommitted rows
// are visible to other callers. Cart row locks are real: a per-cart semaphore
// held until the owning Atomic call returns.
package memory

import (
	"context"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"sort"
	"strings"
	"sync"
	"time"
)

type tables struct {
	mu sync.Mutex

	products   map[int64]entity.Product
	categories map[int64]entity.Category
	links      map[int64]entity.ProductCategory
	carts      map[string]entity.Cart
	cartItems  map[int64]entity.CartItem
	orders     map[int64]entity.Order
	orderItems map[int64]entity.OrderItem

	nextID int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

type Store struct {
	*queries
	lockTimeout time.Duration
}

var _ repository.Store = (*Store)(nil)

func NewStore(lockTimeout time.Duration) *Store {
	t := &tables{
		products:   map[int64]entity.Product{},
		categories: map[int64]entity.Category{},
		links:      map[int64]entity.ProductCategory{},
		carts:      map[string]entity.Cart{},
		cartItems:  map[int64]entity.CartItem{},
		orders:     map[int64]entity.Order{},
		orderItems: map[int64]entity.OrderItem{},
		locks:      map[string]chan struct{}{},
	}
	return &Store{queries: &queries{t: t}, lockTimeout: lockTimeout}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	var undo []func()
	tx := &memoryTx{
		queries:     &queries{t: s.t, undo: &undo},
		lockTimeout: s.lockTimeout,
		held:        map[string]chan struct{}{},
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		s.t.mu.Lock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.t.mu.Unlock()
		return err
	}
	return nil
}

type memoryTx struct {
	*queries
	lockTimeout time.Duration
	held        map[string]chan struct{}
}

func (tx *memoryTx) LockCart(ctx context.Context, id string) error {
	if _, ok := tx.held[id]; ok {
		return nil
	}

	sem, ok := tx.semaphore(id)
	if !ok {
		return repository.ErrNotFound
	}

	timer := time.NewTimer(tx.lockTimeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
	case <-timer.C:
		return repository.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	tx.held[id] = sem

	tx.t.mu.Lock()
	_, exists := tx.t.carts[id]
	tx.t.mu.Unlock()
	if !exists {
		return repository.ErrNotFound
	}
	return nil
}

// semaphore returns the lock of an existing cart, creating it on first use.
// Unknown carts get none, so locks only exist for live carts.
func (tx *memoryTx) semaphore(id string) (chan struct{}, bool) {
	tx.t.mu.Lock()
	defer tx.t.mu.Unlock()
	if _, exists := tx.t.carts[id]; !exists {
		return nil, false
	}

	tx.t.locksMu.Lock()
	defer tx.t.locksMu.Unlock()
	sem, ok := tx.t.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		tx.t.locks[id] = sem
	}
	return sem, true
}

func (tx *memoryTx) release() {
	for id, sem := range tx.held {
		<-sem
		delete(tx.held, id)
	}
}

// queries implements repository.Queries. When undo is set every write records
// its inverse there.
type queries struct {
	t    *tables
	undo *[]func()
}

func (q *queries) record(fn func()) {
	if q.undo != nil {
		*q.undo = append(*q.undo, fn)
	}
}

func (q *queries) id() int64 {
	q.t.nextID++
	return q.t.nextID
}

func put[K comparable, V any](q *queries, m map[K]V, k K, v V) {
	prev, ok := m[k]
	m[k] = v
	q.record(func() {
		if ok {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func remove[K comparable, V any](q *queries, m map[K]V, k K) bool {
	prev, ok := m[k]
	if !ok {
		return false
	}
	delete(m, k)
	q.record(func() { m[k] = prev })
	return true
}

func (q *queries) CreateProduct(ctx context.Context, product *entity.Product) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	product.ID = q.id()
	put(q, q.t.products, product.ID, *product)
	return nil
}

func (q *queries) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	product, ok := q.t.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &product, nil
}

func (q *queries) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]entity.Product, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	var inCategory map[int64]bool
	if filter.CategoryID != 0 {
		inCategory = map[int64]bool{}
		for _, link := range q.t.links {
			if link.CategoryID == filter.CategoryID {
				inCategory[link.ProductID] = true
			}
		}
	}

	products := []entity.Product{}
	for _, product := range q.t.products {
		if inCategory != nil && !inCategory[product.ID] {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(product.Name), strings.ToLower(filter.Search)) {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	if filter.Limit > 0 {
		start := min(filter.Offset, len(products))
		end := min(start+filter.Limit, len(products))
		products = products[start:end]
	}
	return products, nil
}

func (q *queries) UpdateProduct(ctx context.Context, product *entity.Product) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if _, ok := q.t.products[product.ID]; !ok {
		return nil
	}
	put(q, q.t.products, product.ID, *product)
	return nil
}

func (q *queries) DeleteProduct(ctx context.Context, id int64) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if _, ok := q.t.products[id]; !ok {
		return repository.ErrNotFound
	}
	for _, item := range q.t.orderItems {
		if item.ProductID == id {
			return repository.ErrReferenced
		}
	}

	for itemID, item := range q.t.cartItems {
		if item.ProductID == id {
			remove(q, q.t.cartItems, itemID)
		}
	}
	for linkID, link := range q.t.links {
		if link.ProductID == id {
			remove(q, q.t.links, linkID)
		}
	}
	remove(q, q.t.products, id)
	return nil
}

func (q *queries) CreateCategory(ctx context.Context, category *entity.Category) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	for _, existing := range q.t.categories {
		if existing.Name == category.Name {
			return repository.ErrDuplicate
		}
	}
	category.ID = q.id()
	put(q, q.t.categories, category.ID, *category)
	return nil
}

func (q *queries) GetCategory(ctx context.Context, id int64) (*entity.Category, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	category, ok := q.t.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &category, nil
}

func (q *queries) ListCategories(ctx context.Context) ([]entity.Category, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	categories := make([]entity.Category, 0, len(q.t.categories))
	for _, category := range q.t.categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (q *queries) DeleteCategory(ctx context.Context, id int64) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if !remove(q, q.t.categories, id) {
		return repository.ErrNotFound
	}
	for linkID, link := range q.t.links {
		if link.CategoryID == id {
			remove(q, q.t.links, linkID)
		}
	}
	return nil
}

func (q *queries) AddProductCategory(ctx context.Context, link *entity.ProductCategory) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if _, ok := q.t.products[link.ProductID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := q.t.categories[link.CategoryID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range q.t.links {
		if existing.ProductID == link.ProductID && existing.CategoryID == link.CategoryID {
			return repository.ErrDuplicate
		}
	}
	link.ID = q.id()
	put(q, q.t.links, link.ID, *link)
	return nil
}

func (q *queries) CreateCart(ctx context.Context, cart *entity.Cart) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if _, ok := q.t.carts[cart.ID]; ok {
		return repository.ErrDuplicate
	}
	stored := *cart
	stored.Items = nil
	put(q, q.t.carts, cart.ID, stored)
	return nil
}

func (q *queries) GetCart(ctx context.Context, id string) (*entity.Cart, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	cart, ok := q.t.carts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cart.Items = q.cartItemsLocked(func(item entity.CartItem) bool { return item.CartID == id })
	return &cart, nil
}

func (q *queries) TouchCart(ctx context.Context, id string, at time.Time) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	cart, ok := q.t.carts[id]
	if !ok {
		return repository.ErrNotFound
	}
	cart.UpdatedAt = at
	put(q, q.t.carts, id, cart)
	return nil
}

func (q *queries) DeleteCart(ctx context.Context, id string) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if !remove(q, q.t.carts, id) {
		return repository.ErrNotFound
	}
	for itemID, item := range q.t.cartItems {
		if item.CartID == id {
			remove(q, q.t.cartItems, itemID)
		}
	}

	// Holders keep their channel until release; waiters find the cart gone.
	q.t.locksMu.Lock()
	sem, ok := q.t.locks[id]
	delete(q.t.locks, id)
	q.t.locksMu.Unlock()
	if ok {
		q.record(func() {
			q.t.locksMu.Lock()
			q.t.locks[id] = sem
			q.t.locksMu.Unlock()
		})
	}
	return nil
}

// cartItemsLocked returns the matching items joined with their product, ordered by id.
func (q *queries) cartItemsLocked(match func(entity.CartItem) bool) []entity.CartItem {
	items := []entity.CartItem{}
	for _, item := range q.t.cartItems {
		if !match(item) {
			continue
		}
		product, ok := q.t.products[item.ProductID]
		if !ok {
			continue
		}
		item.Product = product
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (q *queries) ListCartItems(ctx context.Context, cartID string) ([]entity.CartItem, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	return q.cartItemsLocked(func(item entity.CartItem) bool { return item.CartID == cartID }), nil
}

func (q *queries) GetCartItem(ctx context.Context, cartID string, itemID int64) (*entity.CartItem, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	items := q.cartItemsLocked(func(item entity.CartItem) bool { return item.CartID == cartID && item.ID == itemID })
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}
	return &items[0], nil
}

func (q *queries) FindCartItem(ctx context.Context, cartID string, productID int64) (*entity.CartItem, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	items := q.cartItemsLocked(func(item entity.CartItem) bool { return item.CartID == cartID && item.ProductID == productID })
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}
	return &items[0], nil
}

func (q *queries) CreateCartItem(ctx context.Context, item *entity.CartItem) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if _, ok := q.t.carts[item.CartID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := q.t.products[item.ProductID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range q.t.cartItems {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
			return repository.ErrDuplicate
		}
	}
	item.ID = q.id()
	stored := *item
	stored.Product = entity.Product{}
	put(q, q.t.cartItems, item.ID, stored)
	return nil
}

func (q *queries) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	item, ok := q.t.cartItems[itemID]
	if !ok {
		return nil
	}
	item.Quantity = quantity
	put(q, q.t.cartItems, itemID, item)
	return nil
}

func (q *queries) DeleteCartItem(ctx context.Context, itemID int64) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if !remove(q, q.t.cartItems, itemID) {
		return repository.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteCartItems(ctx context.Context, cartID string) (int64, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	var n int64
	for itemID, item := range q.t.cartItems {
		if item.CartID == cartID {
			remove(q, q.t.cartItems, itemID)
			n++
		}
	}
	return n, nil
}

func (q *queries) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	for _, order := range q.t.orders {
		if order.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (q *queries) InsertOrder(ctx context.Context, order *entity.Order) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	for _, existing := range q.t.orders {
		if existing.TrackingCode == order.TrackingCode {
			return repository.ErrDuplicate
		}
	}
	order.ID = q.id()
	stored := *order
	stored.Items = nil
	put(q, q.t.orders, order.ID, stored)
	return nil
}

func (q *queries) InsertOrderItems(ctx context.Context, orderID int64, items []entity.OrderItem) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	if _, ok := q.t.orders[orderID]; !ok {
		return repository.ErrNotFound
	}
	for i := range items {
		if _, ok := q.t.products[items[i].ProductID]; !ok {
			return repository.ErrNotFound
		}
		items[i].ID = q.id()
		items[i].OrderID = orderID
		stored := items[i]
		stored.ProductName = ""
		put(q, q.t.orderItems, stored.ID, stored)
	}
	return nil
}

// orderLocked attaches the items, with current product names, to a stored order.
func (q *queries) orderLocked(order entity.Order) entity.Order {
	order.Items = []entity.OrderItem{}
	for _, item := range q.t.orderItems {
		if item.OrderID != order.ID {
			continue
		}
		item.ProductName = q.t.products[item.ProductID].Name
		order.Items = append(order.Items, item)
	}
	sort.Slice(order.Items, func(i, j int) bool { return order.Items[i].ID < order.Items[j].ID })
	return order
}

func (q *queries) findOrder(match func(entity.Order) bool) (*entity.Order, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	for _, order := range q.t.orders {
		if match(order) {
			found := q.orderLocked(order)
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q *queries) GetOrder(ctx context.Context, id int64) (*entity.Order, error) {
	return q.findOrder(func(o entity.Order) bool { return o.ID == id })
}

func (q *queries) GetOrderByTrackingCode(ctx context.Context, code string) (*entity.Order, error) {
	return q.findOrder(func(o entity.Order) bool { return o.TrackingCode == code })
}

func (q *queries) GetOrderByAuthority(ctx context.Context, authority string) (*entity.Order, error) {
	if authority == "" {
		return nil, repository.ErrNotFound
	}
	return q.findOrder(func(o entity.Order) bool { return o.PaymentAuthority == authority })
}

func (q *queries) ListOrdersByUser(ctx context.Context, userID int64) ([]entity.Order, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	orders := []entity.Order{}
	for _, order := range q.t.orders {
		if order.UserID == userID {
			orders = append(orders, q.orderLocked(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (q *queries) SetOrderAuthority(ctx context.Context, id int64, authority string, at time.Time) error {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	order, ok := q.t.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range q.t.orders {
		if existing.ID != id && existing.PaymentAuthority == authority {
			return repository.ErrDuplicate
		}
	}
	order.PaymentAuthority = authority
	order.UpdatedAt = at
	put(q, q.t.orders, id, order)
	return nil
}

func (q *queries) UpdatePaymentStatus(ctx context.Context, id int64, from, to entity.PaymentStatus, at time.Time) (bool, error) {
	q.t.mu.Lock()
	defer q.t.mu.Unlock()

	order, ok := q.t.orders[id]
	if !ok || order.PaymentStatus != from {
		return false, nil
	}
	order.PaymentStatus = to
	order.UpdatedAt = at
	put(q, q.t.orders, id, order)
	return true, nil
}
