package repository

import (
	"context"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"time"
)

const cartItemColumns = `ci.id, ci.cart_id, ci.product_id, ci.quantity, ` + productColumns

func (q *queries) CreateCart(ctx context.Context, cart *entity.Cart) error {
	query := `INSERT INTO carts (id, created_at, updated_at) VALUES (?, ?, ?)`
	_, err := q.db.ExecContext(ctx, query, cart.ID, cart.CreatedAt, cart.UpdatedAt)
	return mapError(err)
}

func (q *queries) GetCart(ctx context.Context, id string) (*entity.Cart, error) {
	query := `SELECT id, created_at, updated_at FROM carts WHERE id = ?`

	cart := &entity.Cart{}
	if err := q.db.QueryRowContext(ctx, query, id).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		return nil, mapError(err)
	}

	items, err := q.ListCartItems(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return cart, nil
}

func (q *queries) TouchCart(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

func (q *queries) DeleteCart(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

func scanCartItem(row rowScanner, item *entity.CartItem) error {
	return row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
		&item.Product.ID, &item.Product.Name, &item.Product.Description, &item.Product.Price, &item.Product.Stock,
		&item.Product.CreatedBy, &item.Product.CreatedAt, &item.Product.UpdatedAt)
}

// ListCartItems returns the items of a cart joined with their current product row.
func (q *queries) ListCartItems(ctx context.Context, cartID string) ([]entity.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ? ORDER BY ci.id`

	rows, err := q.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []entity.CartItem{}
	for rows.Next() {
		var item entity.CartItem
		if err := scanCartItem(rows, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *queries) GetCartItem(ctx context.Context, cartID string, itemID int64) (*entity.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ? AND ci.id = ?`

	item := &entity.CartItem{}
	if err := scanCartItem(q.db.QueryRowContext(ctx, query, cartID, itemID), item); err != nil {
		return nil, mapError(err)
	}
	return item, nil
}

func (q *queries) FindCartItem(ctx context.Context, cartID string, productID int64) (*entity.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ? AND ci.product_id = ?`

	item := &entity.CartItem{}
	if err := scanCartItem(q.db.QueryRowContext(ctx, query, cartID, productID), item); err != nil {
		return nil, mapError(err)
	}
	return item, nil
}

func (q *queries) CreateCartItem(ctx context.Context, item *entity.CartItem) error {
	query := `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)`
	res, err := q.db.ExecContext(ctx, query, item.CartID, item.ProductID, item.Quantity)
	if err != nil {
		return mapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (q *queries) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	_, err := q.db.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE id = ?`, quantity, itemID)
	return mapError(err)
}

func (q *queries) DeleteCartItem(ctx context.Context, itemID int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, itemID)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

// DeleteCartItems empties the cart and reports how many lines were removed.
func (q *queries) DeleteCartItems(ctx context.Context, cartID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}
